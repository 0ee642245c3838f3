// cmd/root.go
package cmd

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/neupims-sim/neupims-sim/config"
	"github.com/neupims-sim/neupims-sim/dram"
	"github.com/neupims-sim/neupims-sim/simcore"
	"github.com/neupims-sim/neupims-sim/simstats"
)

var (
	hardwareConfigPath string
	memoryConfigPath   string
	clientDatasetPath  string
	modelConfigPath    string
	systemConfigPath   string
	logDir             string
	logLevel           string
	modelsList         string
	modeOverride       string
)

var rootCmd = &cobra.Command{
	Use:   "neupims-sim",
	Short: "Cycle-accurate simulator for systolic-array NPU + PIM-HBM LLM inference accelerators",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the NeuPIMS cycle-accurate simulation",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid --log_level: %s", logLevel)
		}
		logrus.SetLevel(level)

		modelPaths := []string{modelConfigPath}
		if modelsList != "" {
			modelPaths = splitList(modelsList)
		}

		for _, modelPath := range modelPaths {
			if err := runOne(modelPath); err != nil {
				logrus.Fatal(err)
			}
		}
	},
}

// runOne loads the five configuration sources (spec.md §6) for one model
// config and drives the simulator to completion.
func runOne(modelPath string) error {
	cfg, err := config.Load(hardwareConfigPath, memoryConfigPath, modelPath, systemConfigPath, clientDatasetPath)
	if err != nil {
		return err
	}
	if modeOverride != "" {
		switch modeOverride {
		case "npu":
			cfg.System.RunMode = config.RunModeNPU
		case "npu+pim":
			cfg.System.RunMode = config.RunModeNPUPIM
		default:
			logrus.Fatalf("invalid --mode: %s (want npu or npu+pim)", modeOverride)
		}
	}

	ini, err := config.ParseDRAMIni(cfg.Memory.PIMConfigPath)
	if err != nil {
		return err
	}
	timing := ini.ToTiming()
	energy := dram.EnergyTable{}

	sim, err := simcore.NewSimulator(cfg, timing, energy)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	opLog, err := os.Create(logDir + "/op_stats.tsv")
	if err != nil {
		return err
	}
	defer opLog.Close()
	opWriter := simstats.NewOpStatsWriter(opLog, cfg.Memory.DRAMFreq, cfg.Hardware.CoreFreq, int64(cfg.Hardware.CoreWidth), int64(cfg.Hardware.CoreHeight))

	logrus.Infof("starting simulation: model=%s run_mode=%s dram_type=%s cores=%d channels=%d",
		cfg.Model.ModelName, cfg.System.RunMode, cfg.Memory.DRAMType, cfg.Hardware.NumCores, cfg.Memory.DRAMChannels)

	for !sim.Idle() {
		sim.Step()
	}

	for _, stat := range sim.FinishedOps() {
		if err := opWriter.WriteOp(stat); err != nil {
			return err
		}
	}
	if err := opWriter.Flush(); err != nil {
		return err
	}

	logrus.Infof("simulation complete: %d requests completed, %d core cycles", len(sim.Completed()), sim.Clocks.CoreCycle)
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&hardwareConfigPath, "config", "hardware.json", "Path to hardware config JSON")
	runCmd.Flags().StringVar(&memoryConfigPath, "mem_config", "memory.json", "Path to memory/DRAM config JSON")
	runCmd.Flags().StringVar(&clientDatasetPath, "cli_config", "clients.csv", "Path to client dataset CSV (input_len, channel)")
	runCmd.Flags().StringVar(&modelConfigPath, "model_config", "model.json", "Path to model config JSON")
	runCmd.Flags().StringVar(&systemConfigPath, "sys_config", "system.json", "Path to system config JSON")
	runCmd.Flags().StringVar(&logDir, "log_dir", "./logs", "Directory for TSV logs")
	runCmd.Flags().StringVar(&logLevel, "log_level", "info", "Log level (trace, debug, info)")
	runCmd.Flags().StringVar(&modelsList, "models_list", "", "Comma-separated list of model config JSON paths to run sequentially, overriding --model_config")
	runCmd.Flags().StringVar(&modeOverride, "mode", "", "Override system config's run_mode (npu, npu+pim)")

	rootCmd.AddCommand(runCmd)
}
