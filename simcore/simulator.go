// Package simcore wires the Client, Scheduler, Cores, Interconnect, and
// per-channel DRAM controllers into the three-clock-domain stepping loop
// spec.md §2 describes, grounded on the teacher's sim/cluster/simulator.go
// top-level driver.
package simcore

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/neupims-sim/neupims-sim/addr"
	"github.com/neupims-sim/neupims-sim/alloc"
	"github.com/neupims-sim/neupims-sim/config"
	"github.com/neupims-sim/neupims-sim/core"
	"github.com/neupims-sim/neupims-sim/dram"
	"github.com/neupims-sim/neupims-sim/icnt"
	"github.com/neupims-sim/neupims-sim/opgraph"
	"github.com/neupims-sim/neupims-sim/reqs"
	"github.com/neupims-sim/neupims-sim/sched"
	"github.com/neupims-sim/neupims-sim/tile"
)

// Simulator owns every subsystem and drives the per-cycle loop.
type Simulator struct {
	Cfg     *config.Config
	Mapping *addr.Mapping

	Pool *tile.Pool
	Ctx  *opgraph.Context

	WeightArena *alloc.WeightArena
	ActArena    *alloc.ActivationArena
	NPUKVAlloc  *alloc.NPUKVAllocator
	PIMRowPools []*alloc.PIMRowPool

	Channels []*dram.Controller
	Net      *icnt.Interconnect
	Cores    []*core.Core

	Clocks *ClockSet
	Sched  *sched.Scheduler
	Client *reqs.Client
	Prog   *ModelProgram

	active    map[int]*reqs.InferRequest
	attnOut   map[int]*opgraph.Tensor
	kCache    map[int]*opgraph.Tensor
	vCache    map[int]*opgraph.Tensor
	completed []*reqs.InferRequest

	pendingOps []*opgraph.Operation
	coreCursor int
	finishedOps []opgraph.OpStat
}

// geometryFromConfig derives an addr.Geometry from the loaded hardware/
// memory configuration (spec.md §6).
func geometryFromConfig(mem *config.MemoryConfig) addr.Geometry {
	mapping := mem.AddressMapping
	if mapping == "" {
		mapping = "rorabgbachco"
	}
	return addr.Geometry{
		NumChannels:    mem.DRAMChannels,
		NumRanks:       1,
		NumBankGroups:  4,
		NumBanksPerGrp: mem.DRAMBanksPerCh / 4,
		NumRows:        1 << 16,
		NumCols:        mem.DRAMPageSize / 2,
		BurstLength:    8,
		BusWidthBytes:  mem.DRAMReqSize,
		AddressMapping: mapping,
	}
}

// NewSimulator constructs every subsystem from cfg and timing, ready to
// Step().
func NewSimulator(cfg *config.Config, timing dram.Timing, energy dram.EnergyTable) (*Simulator, error) {
	mapping, err := addr.NewMapping(geometryFromConfig(&cfg.Memory))
	if err != nil {
		return nil, fmt.Errorf("simcore: %w", err)
	}

	bufMode := dram.DualBuffer
	if cfg.Memory.DRAMType == config.Newton {
		bufMode = dram.SingleBuffer
	}

	numBankGroups := 4
	banksPerGroup := cfg.Memory.DRAMBanksPerCh / numBankGroups
	if banksPerGroup < 1 {
		banksPerGroup = 1
	}

	slackCosts := dram.DefaultSlackCostTable(timing)
	channels := make([]*dram.Controller, cfg.Memory.DRAMChannels)
	for ch := range channels {
		chState := dram.NewChannelState(bufMode, 1, numBankGroups, banksPerGroup, timing)
		queue := dram.NewCommandQueue(8, slackCosts)
		refresh := dram.NewRefreshGenerator(timing, 1)
		channels[ch] = dram.NewController(chState, queue, refresh, mapping, timing, energy, cfg.Memory.DualCmdEnabled)
	}

	net := icnt.NewInterconnect(cfg.Hardware.NumCores, cfg.Memory.DRAMChannels, cfg.Hardware.ICNTLatency, 64)

	pool := tile.NewPool()
	dK := cfg.Model.DK()
	ctx := opgraph.NewContext(pool, int64(cfg.Hardware.CoreWidth), int64(cfg.Hardware.CoreHeight), cfg.Hardware.SRAMSize, int64(cfg.Hardware.Precision), dK, cfg.Memory.DRAMPageSize)

	vecLatencies := map[tile.Opcode]int64{
		tile.LAYERNORM: cfg.Hardware.VectorLatencies.LayerNormPerRow,
		tile.SOFTMAX:   cfg.Hardware.VectorLatencies.SoftmaxPerRow,
		tile.ADD:       cfg.Hardware.VectorLatencies.AddPerRow,
		tile.GELU:      cfg.Hardware.VectorLatencies.GeluPerRow,
	}
	vecFn := opgraph.VectorLatency(vecLatencies, int64(cfg.Hardware.VectorCoreWidth))

	cores := make([]*core.Core, cfg.Hardware.NumCores)
	for i := range cores {
		cores[i] = core.NewCore(i, int64(cfg.Hardware.CoreHeight), int64(cfg.Hardware.CoreWidth), cfg.Hardware.VectorCoreWidth, vecFn, pool, int64(cfg.Memory.DRAMReqSize), mapping, net)
	}

	weights := alloc.NewWeightArena(0, cfg.Memory.DRAMReqSize, cfg.Memory.DRAMChannels)
	actArena := alloc.NewActivationArena(weights.Limit(), cfg.Memory.HBMActBufSize, cfg.Memory.DRAMReqSize, cfg.Memory.DRAMChannels)

	// baseline_exp (spec.md memory.json §6, SPEC_FULL.md §12.4) forces MHA
	// through the SA GEMV lowering even when PIM hardware is modeled, so
	// the NPU-style KV cache allocator must exist alongside (not instead
	// of) the PIM row pools whenever it's set.
	var npuAlloc *alloc.NPUKVAllocator
	var pimPools []*alloc.PIMRowPool
	if cfg.System.RunMode == config.RunModeNPU || cfg.Memory.BaselineExp {
		npuAlloc = alloc.NewNPUKVAllocator(actArena.Limit(), dK, cfg.Hardware.Precision)
	}
	if cfg.System.RunMode != config.RunModeNPU {
		bankPerCh := cfg.Memory.DRAMBanksPerCh
		numRows := int(cfg.Memory.HBMSize / uint64(cfg.Memory.DRAMPageSize) / uint64(cfg.Memory.DRAMChannels))
		pimPools = make([]*alloc.PIMRowPool, cfg.Memory.DRAMChannels)
		for ch := range pimPools {
			pimPools[ch] = alloc.NewPIMRowPool(actArena.Limit(), numRows, uint64(cfg.Memory.DRAMPageSize))
		}
		_ = bankPerCh
	}

	prog := NewModelProgram(&cfg.Model, &cfg.Hardware, mapping, ctx, weights)

	schd := sched.NewScheduler(cfg.System.MaxBatchSize, cfg.Memory.DRAMChannels, cfg.Model.NLayer)
	schd.Baseline = cfg.Memory.BaselineExp
	client := reqs.NewClient(cfg.Dataset, 10, cfg.System.MaxSeqLen/4)

	clocks := NewClockSet(cfg.Hardware.CoreFreq, cfg.Hardware.ICNTFreq, cfg.Memory.DRAMFreq)

	return &Simulator{
		Cfg: cfg, Mapping: mapping, Pool: pool, Ctx: ctx,
		WeightArena: weights, ActArena: actArena, NPUKVAlloc: npuAlloc, PIMRowPools: pimPools,
		Channels: channels, Net: net, Cores: cores,
		Clocks: clocks, Sched: schd, Client: client, Prog: prog,
		active: make(map[int]*reqs.InferRequest), attnOut: make(map[int]*opgraph.Tensor),
		kCache: make(map[int]*opgraph.Tensor), vCache: make(map[int]*opgraph.Tensor),
	}, nil
}

// Step advances the simulator by one minimum-time increment across all
// three clock domains (spec.md §2).
func (s *Simulator) Step() {
	mask := s.Clocks.Advance()

	if mask.DRAM {
		s.tickDRAM()
	}
	if mask.ICNT {
		s.Net.Tick(s.Clocks.ICNTCycle)
	}
	if mask.Core {
		s.tickCore()
	}
}

func (s *Simulator) tickDRAM() {
	now := s.Clocks.DRAMCycle
	for ch, ctrl := range s.Channels {
		if err := ctrl.Tick(now); err != nil {
			logrus.WithField("channel", ch).Fatal(err)
		}
		for {
			req, ok := s.Net.PopSARequest(ch)
			if !ok {
				break
			}
			req.Tx.CoreID = req.CoreID
			if !ctrl.AddTransaction(req.Tx, now) {
				break
			}
		}
		for {
			req, ok := s.Net.PopPIMRequest(ch)
			if !ok {
				break
			}
			req.Tx.CoreID = req.CoreID
			if !ctrl.AddTransaction(req.Tx, now) {
				break
			}
		}
		for _, tx := range ctrl.DrainResponses() {
			s.Net.DeliverResponse(tx.CoreID, ch, tx)
		}
	}
}

func (s *Simulator) tickCore() {
	now := s.Clocks.CoreCycle

	s.admitArrivals(now)
	s.driveStage(now)

	for _, c := range s.Cores {
		c.Tick(now)
		c.ProcessResponses()
	}
	s.retireTiles()
}

// admitArrivals pulls due requests from the Client and registers their KV
// caches, per spec.md §4.5's "assign each initialization-phase request a
// DRAM channel".
func (s *Simulator) admitArrivals(now int64) {
	for {
		req, ok := s.Client.Cycle(now)
		if !ok {
			break
		}
		s.registerKVCache(req)
		s.active[req.ID] = req
	}
}

func (s *Simulator) registerKVCache(req *reqs.InferRequest) {
	dK := s.Cfg.Model.DK()
	if s.Cfg.System.RunMode == config.RunModeNPU || s.Cfg.Memory.BaselineExp {
		s.kCache[req.ID] = opgraph.NewKVBlockedNPU(s.NPUKVAlloc, dK)
		s.vCache[req.ID] = opgraph.NewKVBlockedNPU(s.NPUKVAlloc, dK)
		return
	}
	if !req.ChannelAssigned {
		req.Channel = req.ID % len(s.PIMRowPools)
		req.ChannelAssigned = true
	}
	bankPerCh := s.Cfg.Memory.DRAMBanksPerCh
	numElePerRow := s.Cfg.Memory.DRAMPageSize / s.Cfg.Hardware.Precision
	pool := s.PIMRowPools[req.Channel]
	s.kCache[req.ID] = opgraph.NewKVRowStripedPIM(pool, req.Channel, true, bankPerCh, numElePerRow)
	s.vCache[req.ID] = opgraph.NewKVRowStripedPIM(pool, req.Channel, false, bankPerCh, numElePerRow)
}

// driveStage compiles the current stage's work into Operations once the
// prior stage's tiles have all retired, then feeds ready tiles to cores
// (spec.md §4.5's six-stage SA/PIM interleaving).
func (s *Simulator) driveStage(now int64) {
	if len(s.pendingOps) == 0 {
		s.compileStage(now)
	}
	s.feedCores()
}

func (s *Simulator) compileStage(now int64) {
	if len(s.active) == 0 {
		return
	}
	if len(s.Sched.B1) == 0 && len(s.Sched.B2) == 0 {
		batch := make([]*ActiveBatchMember, 0, len(s.active))
		for _, r := range s.active {
			batch = append(batch, &ActiveBatchMember{req: r})
		}
		s.formIteration(batch)
	}

	stage := s.Sched.Stage
	saKind, saBatchNum := stage.SAWork()
	pimKind, pimBatchNum := stage.PIMWork()

	s.ActArena.Flush()
	var ops []*opgraph.Operation

	saBatch := s.requestsOf(s.Sched.CurrentBatch(saBatchNum))
	switch saKind {
	case sched.WorkQKVGen:
		if o, err := s.Prog.BuildQKVGen(s.ActArena, saBatch); err == nil {
			ops = append(ops, o...)
		}
	case sched.WorkProjFFN, sched.WorkProjFFNQKVGen:
		if o, err := s.Prog.BuildProjFFN(s.ActArena, saBatch, s.attnOut); err == nil {
			ops = append(ops, o...)
		}
		if saKind == sched.WorkProjFFNQKVGen {
			if o, err := s.Prog.BuildQKVGen(s.ActArena, saBatch); err == nil {
				ops = append(ops, o...)
			}
		}
	}

	pimBatch := s.requestsOf(s.Sched.CurrentBatch(pimBatchNum))
	switch pimKind {
	case sched.WorkMHA:
		// baseline_exp forces the SA GEMV lowering in place of PIM ops even
		// under RunModeNPUPIM (spec.md memory.json §6, SPEC_FULL.md §12.4).
		if s.Cfg.System.RunMode == config.RunModeNPU || s.Cfg.Memory.BaselineExp {
			if o, out, err := s.Prog.BuildMHANPU(s.ActArena, pimBatch, s.kCache, s.vCache, s.Cfg.System.KernelFusion); err == nil {
				ops = append(ops, o...)
				for id, t := range out {
					s.attnOut[id] = t
				}
			}
		} else {
			mode := opgraph.NewtonMode
			if s.Cfg.Memory.DRAMType == config.NeuPIMS {
				mode = opgraph.NeuPIMSFused
			}
			if o, out, err := s.Prog.BuildMHAPIM(s.ActArena, pimBatch, s.kCache, s.Cfg.Hardware.VectorCoreWidth, mode); err == nil {
				ops = append(ops, o...)
				for id, t := range out {
					s.attnOut[id] = t
				}
			}
		}
	}

	for _, op := range ops {
		if !op.Executable() {
			continue
		}
		op.Compile(s.Ctx)
		s.pendingOps = append(s.pendingOps, op)
	}

	if stage == sched.StageFinish {
		s.retireFinishedTokens(now)
		s.Sched.B1, s.Sched.B2 = nil, nil
	} else {
		s.Sched.AdvanceStage()
	}
}

// ActiveBatchMember pairs a request with the scheduler's latency-estimation
// view (sched.ActiveRequest), kept local to simcore since only this package
// knows how to estimate MHA latency from KV cache depth.
type ActiveBatchMember struct {
	req *reqs.InferRequest
}

func (s *Simulator) formIteration(members []*ActiveBatchMember) {
	active := make([]*sched.ActiveRequest, len(members))
	byID := make(map[int]*reqs.InferRequest, len(members))
	for i, m := range members {
		k := s.kCache[m.req.ID]
		depth := 0
		if k != nil {
			depth = k.NumTokens
		}
		active[i] = &sched.ActiveRequest{
			ID: m.req.ID, Channel: m.req.Channel, ChannelAssigned: m.req.ChannelAssigned,
			InputSize: m.req.InputSize, IsInitiated: m.req.IsInitiated,
			EstimatedMHALatency: float64(depth + 1),
		}
		byID[m.req.ID] = m.req
	}
	s.Sched.FormIteration(active)
	for _, ar := range append(append([]*sched.ActiveRequest{}, s.Sched.B1...), s.Sched.B2...) {
		if r, ok := byID[ar.ID]; ok {
			r.Channel = ar.Channel
			r.ChannelAssigned = ar.ChannelAssigned
		}
	}
}

func (s *Simulator) requestsOf(batch []*sched.ActiveRequest) []*reqs.InferRequest {
	out := make([]*reqs.InferRequest, 0, len(batch))
	for _, ar := range batch {
		if r, ok := s.active[ar.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *Simulator) retireFinishedTokens(now int64) {
	for id, r := range s.active {
		r.RetireToken(now)
		if r.Done() {
			s.completed = append(s.completed, r)
			delete(s.active, id)
			delete(s.attnOut, id)
		}
	}
}

// feedCores issues tiles from pendingOps' tile queues to cores, round-robin,
// respecting each core's double-buffer availability (spec.md §9).
func (s *Simulator) feedCores() {
	if len(s.Cores) == 0 {
		return
	}
	for _, op := range s.pendingOps {
		for {
			h, ok := op.PopTile()
			if !ok {
				break
			}
			t := s.Pool.Get(h)
			if t == nil {
				continue
			}
			if t.Status == tile.Bar {
				t.Status = tile.Finish
				continue
			}
			c := s.Cores[s.coreCursor]
			s.coreCursor = (s.coreCursor + 1) % len(s.Cores)
			half, okAct := c.CanIssue(c.ActSpad, false)
			if !okAct {
				op.PushFront(h)
				break
			}
			accHalf, okAcc := c.CanIssue(c.AccumSpad, !t.Accum)
			if !okAcc {
				op.PushFront(h)
				break
			}
			_ = half
			_ = accHalf
			c.IssueTile(t, h)
		}
	}
}

func (s *Simulator) retireTiles() {
	kept := s.pendingOps[:0]
	for _, op := range s.pendingOps {
		if len(op.TileQueue()) == 0 {
			s.finishedOps = append(s.finishedOps, op.Stat)
			continue
		}
		kept = append(kept, op)
	}
	s.pendingOps = kept
}

// FinishedOps returns the aggregated stats of every Operation whose tile
// queue has fully drained, for the per-operation TSV log (spec.md §6).
func (s *Simulator) FinishedOps() []opgraph.OpStat {
	return s.finishedOps
}

// Completed returns every request that has reached output_size tokens.
func (s *Simulator) Completed() []*reqs.InferRequest {
	return s.completed
}

// Idle reports whether the simulator has no more arrivals and no
// outstanding work — spec.md §7's "dataset exhausted" clean-completion
// condition.
func (s *Simulator) Idle() bool {
	return s.Client.Exhausted() && len(s.active) == 0 && len(s.pendingOps) == 0
}
