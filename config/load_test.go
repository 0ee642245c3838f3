package config

import (
	"testing"
)

func TestLoadHardware_ValidJSON_DecodesFields(t *testing.T) {
	// GIVEN a minimal hardware.json
	path := writeTempFile(t, "hardware.json", `{
		"num_cores": 4,
		"core_type": "systolic_ws",
		"core_width": 128,
		"core_height": 128,
		"core_freq": 1000000000,
		"sram_size": 1048576
	}`)

	// WHEN it is loaded
	hw, err := LoadHardware(path)
	if err != nil {
		t.Fatalf("LoadHardware: %v", err)
	}

	// THEN the fields decode as expected
	if hw.NumCores != 4 || hw.CoreType != SystolicWS || hw.CoreWidth != 128 || hw.CoreHeight != 128 {
		t.Errorf("got %+v, want NumCores=4 CoreType=systolic_ws CoreWidth=128 CoreHeight=128", hw)
	}
}

func TestLoadHardware_MissingFile_ReturnsError(t *testing.T) {
	// GIVEN a nonexistent path
	// WHEN loaded
	_, err := LoadHardware("/nonexistent/hardware.json")

	// THEN an error is returned
	if err == nil {
		t.Fatal("expected an error for a missing hardware config, got nil")
	}
}

func TestLoadMemory_UnknownDRAMType_ReturnsError(t *testing.T) {
	// GIVEN a memory.json naming an unrecognized dram_type
	path := writeTempFile(t, "memory.json", `{"dram_type": "BOGUS"}`)

	// WHEN it is loaded
	_, err := LoadMemory(path)

	// THEN it is rejected
	if err == nil {
		t.Fatal("expected an error for unknown dram_type, got nil")
	}
}

func TestLoadMemory_BadAddressMappingLength_ReturnsError(t *testing.T) {
	// GIVEN an address_mapping string that is not exactly 12 characters
	path := writeTempFile(t, "memory.json", `{"dram_type": "NEUPIMS", "address_mapping": "short"}`)

	// WHEN it is loaded
	_, err := LoadMemory(path)

	// THEN it is rejected
	if err == nil {
		t.Fatal("expected an error for a bad address_mapping length, got nil")
	}
}

func TestLoadMemory_Valid_DecodesAndPasses(t *testing.T) {
	// GIVEN a valid memory.json with a correctly-sized address mapping
	path := writeTempFile(t, "memory.json", `{"dram_type": "NEUPIMS", "dram_channels": 32, "address_mapping": "RRRRBBCCCCCC"}`)

	// WHEN it is loaded
	mem, err := LoadMemory(path)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}

	// THEN it decodes with no validation error
	if mem.DRAMType != NeuPIMS || mem.DRAMChannels != 32 {
		t.Errorf("got %+v, want DRAMType=NEUPIMS DRAMChannels=32", mem)
	}
}

func TestLoadSystem_UnknownRunMode_ReturnsError(t *testing.T) {
	// GIVEN a system.json naming an unrecognized run_mode
	path := writeTempFile(t, "system.json", `{"run_mode": "turbo"}`)

	// WHEN it is loaded
	_, err := LoadSystem(path)

	// THEN it is rejected
	if err == nil {
		t.Fatal("expected an error for unknown run_mode, got nil")
	}
}

func TestLoadSystem_Valid_Decodes(t *testing.T) {
	// GIVEN a valid system.json
	path := writeTempFile(t, "system.json", `{"run_mode": "npu+pim", "max_batch_size": 64}`)

	// WHEN it is loaded
	sys, err := LoadSystem(path)
	if err != nil {
		t.Fatalf("LoadSystem: %v", err)
	}

	// THEN it decodes correctly
	if sys.RunMode != RunModeNPUPIM || sys.MaxBatchSize != 64 {
		t.Errorf("got %+v, want RunMode=npu+pim MaxBatchSize=64", sys)
	}
}

func TestLoadDataset_SkipsHeaderRow(t *testing.T) {
	// GIVEN a CSV with a non-numeric header row followed by data rows
	path := writeTempFile(t, "clients.csv", "input_len,channel\n128,0\n256,1\n")

	// WHEN the dataset is loaded
	rows, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	// THEN only the two data rows are returned, in order
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].InputLen != 128 || rows[0].Channel != 0 {
		t.Errorf("row 0: got %+v, want {128 0}", rows[0])
	}
	if rows[1].InputLen != 256 || rows[1].Channel != 1 {
		t.Errorf("row 1: got %+v, want {256 1}", rows[1])
	}
}

func TestLoadDataset_NoHeaderRow_ParsesAllRows(t *testing.T) {
	// GIVEN a CSV with no header row at all
	path := writeTempFile(t, "clients.csv", "128,0\n256,1\n")

	// WHEN the dataset is loaded
	rows, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}

	// THEN both rows are parsed
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
}

func TestLoadDataset_MissingFile_ReturnsError(t *testing.T) {
	// GIVEN a nonexistent dataset path
	// WHEN loaded
	_, err := LoadDataset("/nonexistent/clients.csv")

	// THEN an error is returned
	if err == nil {
		t.Fatal("expected an error for a missing dataset file, got nil")
	}
}

func TestLoad_AllFivePresentAndValid_ReturnsPopulatedConfig(t *testing.T) {
	// GIVEN all five configuration sources, valid and well-formed
	hwPath := writeTempFile(t, "hardware.json", `{"num_cores": 1, "core_width": 128, "core_height": 128}`)
	memPath := writeTempFile(t, "memory.json", `{"dram_type": "DRAM", "dram_channels": 16}`)
	modelPath := writeTempFile(t, "model.json", `{"model_name": "test-model", "model_n_layer": 2}`)
	sysPath := writeTempFile(t, "system.json", `{"run_mode": "npu"}`)
	datasetPath := writeTempFile(t, "clients.csv", "128,0\n")

	// WHEN Load assembles them
	cfg, err := Load(hwPath, memPath, modelPath, sysPath, datasetPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// THEN every section is populated from its own file
	if cfg.Hardware.NumCores != 1 {
		t.Errorf("Hardware.NumCores: got %d, want 1", cfg.Hardware.NumCores)
	}
	if cfg.Memory.DRAMChannels != 16 {
		t.Errorf("Memory.DRAMChannels: got %d, want 16", cfg.Memory.DRAMChannels)
	}
	if cfg.Model.ModelName != "test-model" {
		t.Errorf("Model.ModelName: got %q, want test-model", cfg.Model.ModelName)
	}
	if cfg.System.RunMode != RunModeNPU {
		t.Errorf("System.RunMode: got %q, want npu", cfg.System.RunMode)
	}
	if len(cfg.Dataset) != 1 {
		t.Fatalf("Dataset: got %d rows, want 1", len(cfg.Dataset))
	}
}

func TestLoad_InvalidMemoryConfig_PropagatesError(t *testing.T) {
	// GIVEN a valid hardware config but an invalid memory config
	hwPath := writeTempFile(t, "hardware.json", `{"num_cores": 1}`)
	memPath := writeTempFile(t, "memory.json", `{"dram_type": "BOGUS"}`)
	modelPath := writeTempFile(t, "model.json", `{}`)
	sysPath := writeTempFile(t, "system.json", `{"run_mode": "npu"}`)
	datasetPath := writeTempFile(t, "clients.csv", "128,0\n")

	// WHEN Load assembles them
	_, err := Load(hwPath, memPath, modelPath, sysPath, datasetPath)

	// THEN the error from the invalid stage propagates
	if err == nil {
		t.Fatal("expected an error from the invalid memory config, got nil")
	}
}
