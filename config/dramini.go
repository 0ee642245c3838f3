package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/neupims-sim/neupims-sim/dram"
)

// DRAMIni is the flat key=value industry-standard DRAM timing file spec.md
// §6 names ("tCK, tRCD, tRP, tRAS, tFAW, …"), parsed by a small hand-rolled
// scanner. No ecosystem .ini parser appears anywhere in the retrieved
// examples, and the format needs numeric-with-unit-suffix handling (a
// trailing "ns"/"ck" on a value) specific to DRAM timing files that a
// generic INI library would not provide, so this stays stdlib-only
// (SPEC_FULL.md §10.2).
type DRAMIni map[string]int64

// ParseDRAMIni reads a key = value per line file, skipping blank lines and
// lines beginning with "#" or ";", and stripping any trailing unit suffix
// ("ns", "ck", "ps") from the value.
func ParseDRAMIni(path string) (DRAMIni, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading DRAM-ini %s: %w", path, err)
	}
	defer f.Close()

	out := make(DRAMIni)
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: %s:%d: expected key = value, got %q", path, lineNo, line)
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		val := strings.TrimSpace(parts[1])
		val = strings.TrimSuffix(val, "ns")
		val = strings.TrimSuffix(val, "ck")
		val = strings.TrimSuffix(val, "ps")
		val = strings.TrimSpace(val)
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: %s:%d: non-numeric value %q for key %q", path, lineNo, parts[1], key)
		}
		out[key] = n
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ini DRAMIni) get(key string, def int64) int64 {
	if v, ok := ini[key]; ok {
		return v
	}
	return def
}

func (ini DRAMIni) getBool(key string, def bool) bool {
	if v, ok := ini[key]; ok {
		return v != 0
	}
	return def
}

// ToTiming lowers a parsed DRAM-ini into the dram.Timing struct the
// controller consumes as opaque per-protocol constants (spec.md §1).
func (ini DRAMIni) ToTiming() dram.Timing {
	return dram.Timing{
		TCK:           ini.get("tck", 1),
		TRCD:          ini.get("trcd", 0),
		TRP:           ini.get("trp", 0),
		TRAS:          ini.get("tras", 0),
		TFAW:          ini.get("tfaw", 0),
		TCCD_S:        ini.get("tccd_s", 0),
		TCCD_L:        ini.get("tccd_l", 0),
		TRRD_S:        ini.get("trrd_s", 0),
		TRRD_L:        ini.get("trrd_l", 0),
		TRTP:          ini.get("trtp", 0),
		TWTP:          ini.get("twtp", 0),
		TRTW:          ini.get("trtw", 0),
		TWTR:          ini.get("twtr", 0),
		TREFI:         ini.get("trefi", 0),
		TRFC:          ini.get("trfc", 0),
		TGACT:         ini.get("tgact", 0),
		BurstCycle:    ini.get("burst_cycle", 0),
		GDDRACTWindow: ini.getBool("gddr_act_window", false),
	}
}
