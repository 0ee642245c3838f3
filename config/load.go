package config

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// LoadHardware decodes hardware.json. A missing file or malformed JSON is a
// boot error (spec.md §7 taxonomy 1): the caller prints one line to stderr
// and exits non-zero, it never panics.
func LoadHardware(path string) (*HardwareConfig, error) {
	var c HardwareConfig
	if err := decodeJSONFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: loading hardware config %s: %w", path, err)
	}
	return &c, nil
}

// LoadMemory decodes memory.json and validates dram_type and
// address_mapping (spec.md §7 taxonomy 1: "unknown protocol/DRAM type",
// "address-mapping string length != 12").
func LoadMemory(path string) (*MemoryConfig, error) {
	var c MemoryConfig
	if err := decodeJSONFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: loading memory config %s: %w", path, err)
	}
	switch c.DRAMType {
	case DRAMPlain, Newton, NeuPIMS:
	default:
		return nil, fmt.Errorf("config: unknown dram_type %q", c.DRAMType)
	}
	if c.AddressMapping != "" && len(c.AddressMapping) != 12 {
		return nil, fmt.Errorf("config: address_mapping must be exactly 12 characters, got %q (len %d)", c.AddressMapping, len(c.AddressMapping))
	}
	return &c, nil
}

// LoadModel decodes model.json.
func LoadModel(path string) (*ModelConfig, error) {
	var c ModelConfig
	if err := decodeJSONFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: loading model config %s: %w", path, err)
	}
	return &c, nil
}

// LoadSystem decodes system.json and validates run_mode.
func LoadSystem(path string) (*SystemConfig, error) {
	var c SystemConfig
	if err := decodeJSONFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: loading system config %s: %w", path, err)
	}
	switch c.RunMode {
	case RunModeNPU, RunModeNPUPIM:
	default:
		return nil, fmt.Errorf("config: unknown run_mode %q", c.RunMode)
	}
	return &c, nil
}

// LoadDataset parses the client dataset CSV (spec.md §6: columns
// input_len, channel). The header row, if present (non-numeric first
// field), is skipped.
func LoadDataset(path string) ([]ClientRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading client dataset %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows []ClientRow
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("config: parsing client dataset %s: %w", path, err)
		}
		if len(rec) < 2 {
			continue
		}
		inputLen, errA := strconv.Atoi(rec[0])
		channel, errB := strconv.Atoi(rec[1])
		if errA != nil || errB != nil {
			if first {
				first = false
				continue // header row
			}
			return nil, fmt.Errorf("config: malformed client dataset row %v", rec)
		}
		first = false
		rows = append(rows, ClientRow{InputLen: inputLen, Channel: channel})
	}
	return rows, nil
}

func decodeJSONFile(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	return dec.Decode(v)
}

// Load reads all five configuration sources named by the CLI flags
// (spec.md §6) into a single Config.
func Load(hardwarePath, memoryPath, modelPath, systemPath, datasetPath string) (*Config, error) {
	hw, err := LoadHardware(hardwarePath)
	if err != nil {
		return nil, err
	}
	mem, err := LoadMemory(memoryPath)
	if err != nil {
		return nil, err
	}
	model, err := LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	sys, err := LoadSystem(systemPath)
	if err != nil {
		return nil, err
	}
	dataset, err := LoadDataset(datasetPath)
	if err != nil {
		return nil, err
	}
	return &Config{Hardware: *hw, Memory: *mem, Model: *model, System: *sys, Dataset: dataset}, nil
}
