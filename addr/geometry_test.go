package addr

import "testing"

func testGeometry() Geometry {
	return Geometry{
		NumChannels:    16,
		NumRanks:       2,
		NumBankGroups:  4,
		NumBanksPerGrp: 4,
		NumRows:        32768,
		NumCols:        1024,
		BurstLength:    8,
		BusWidthBytes:  2,
		AddressMapping: "rorabgbachco",
	}
}

func TestMapping_RoundTrip(t *testing.T) {
	// GIVEN a 16-channel, 2-rank, 4-bg, 4-bank, 32768-row, 1024-col device
	m, err := NewMapping(testGeometry())
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}

	// WHEN encoding (3, 1, 2, 3, 12345, 7) and decoding it back
	addr := m.MakeAddress(3, 1, 2, 3, 12345, 7)
	got := m.Decode(addr)

	// THEN the same tuple is recovered
	want := Fields{Channel: 3, Rank: 1, BankGroup: 2, Bank: 3, Row: 12345, Col: 7}
	if got != want {
		t.Errorf("round trip: got %+v, want %+v", got, want)
	}
}

func TestMapping_InvalidAddressMappingLength(t *testing.T) {
	// GIVEN an address_mapping string of the wrong length
	g := testGeometry()
	g.AddressMapping = "rorabgba" // 8 chars, not 12

	// WHEN constructing a Mapping
	_, err := NewMapping(g)

	// THEN it is a boot error
	if err == nil {
		t.Fatal("expected error for address_mapping length != 12")
	}
}

func TestMapping_UnknownFieldToken(t *testing.T) {
	g := testGeometry()
	g.AddressMapping = "roxxbgbachco"
	if _, err := NewMapping(g); err == nil {
		t.Fatal("expected error for unknown field token")
	}
}

func TestMapping_NonPowerOfTwoGeometry(t *testing.T) {
	g := testGeometry()
	g.NumBanksPerGrp = 3
	if _, err := NewMapping(g); err == nil {
		t.Fatal("expected error for non-power-of-two bank count")
	}
}

func TestMapping_SwitchCoCh_Involution(t *testing.T) {
	// GIVEN an encoded address
	m, err := NewMapping(testGeometry())
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}
	addr := m.MakeAddress(3, 1, 2, 3, 12345, 7)

	// WHEN switch_co_ch is applied twice
	once := m.SwitchCoCh(addr)
	twice := m.SwitchCoCh(once)

	// THEN it returns to the original address (it only swaps two fields)
	if twice != addr {
		t.Errorf("SwitchCoCh should be its own inverse: got %d, want %d", twice, addr)
	}
}

func TestPIMHeader_RoundTrip_PowersOfTwo(t *testing.T) {
	m, err := NewMapping(testGeometry())
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}

	cases := []struct {
		numComps, numReadres int
		forGWrite            bool
	}{
		{numComps: 4, numReadres: 8, forGWrite: false},
		{numComps: 1, numReadres: 1, forGWrite: true},
		{numComps: 64, numReadres: 32, forGWrite: true},
	}
	for _, c := range cases {
		addr := m.EncodePIMHeader(5, 999, c.forGWrite, c.numComps, c.numReadres)
		got := m.DecodePIMHeader(addr)
		if got.NumComps != c.numComps || got.NumReadres != c.numReadres || got.ForGWrite != c.forGWrite || got.Row != 999 {
			t.Errorf("PIMHeader round trip: got %+v, want comps=%d readres=%d forGWrite=%v row=999", got, c.numComps, c.numReadres, c.forGWrite)
		}
	}
}

func TestCompsReadres_RoundTrip(t *testing.T) {
	m, err := NewMapping(testGeometry())
	if err != nil {
		t.Fatalf("NewMapping: %v", err)
	}

	for _, numComps := range []int{1, 4, 16, 32} {
		for _, isLast := range []bool{true, false} {
			addr := m.EncodeCompsReadres(2, 777, numComps, isLast)
			got := m.DecodeCompsReadres(addr)
			if got.NumComps != numComps || got.IsLast != isLast || got.Row != 777 {
				t.Errorf("CompsReadres round trip(%d,%v): got %+v", numComps, isLast, got)
			}
		}
	}
}
