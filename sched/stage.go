package sched

// Stage is the six-stage (plus terminal Finish) enum spec.md §3/§4.5
// drives SA/PIM interleaving with.
type Stage int

const (
	StageA Stage = iota
	StageB
	StageC
	StageD
	StageE
	StageF
	StageFinish
)

func (s Stage) String() string {
	names := [...]string{"A", "B", "C", "D", "E", "F", "Finish"}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// Next advances the stage loop. Stages C and D cycle once per remaining
// transformer layer (spec.md §4.5: "Layers > 1 cycle C<->D"); layersRemaining
// is the number of layers still to process for the current token *after*
// the lap that just completed on leaving D.
func (s Stage) Next(layersRemaining int) Stage {
	switch s {
	case StageA:
		return StageB
	case StageB:
		return StageC
	case StageC:
		return StageD
	case StageD:
		if layersRemaining > 0 {
			return StageC
		}
		return StageE
	case StageE:
		return StageF
	case StageF:
		return StageFinish
	}
	return StageFinish
}

// WorkKind names the kind of work a stage schedules on one platform.
type WorkKind int

const (
	WorkNone WorkKind = iota
	WorkQKVGen
	WorkProjFFN
	WorkProjFFNQKVGen
	WorkMHA
)

// SAWork and PIMWork implement spec.md §4.5's stage table:
//
//	Stage | SA runs               | PIM runs
//	A     | QKVgen(B1)            | -
//	B     | QKVgen(B2)            | MHA(B1)
//	C     | Proj/FFN(B1)+QKVgen(B1)| MHA(B2)
//	D     | Proj/FFN(B2)+QKVgen(B2)| MHA(B1)
//	E     | Proj/FFN(B1)          | MHA(B2)
//	F     | Proj/FFN(B2)          | -
func (s Stage) SAWork() (kind WorkKind, batch int) {
	switch s {
	case StageA:
		return WorkQKVGen, 1
	case StageB:
		return WorkQKVGen, 2
	case StageC:
		return WorkProjFFNQKVGen, 1
	case StageD:
		return WorkProjFFNQKVGen, 2
	case StageE:
		return WorkProjFFN, 1
	case StageF:
		return WorkProjFFN, 2
	}
	return WorkNone, 0
}

// PIMWork returns the PIM-side work for s: MHA on batch 1 or 2, or none.
func (s Stage) PIMWork() (kind WorkKind, batch int) {
	switch s {
	case StageB:
		return WorkMHA, 1
	case StageC:
		return WorkMHA, 2
	case StageD:
		return WorkMHA, 1
	case StageE:
		return WorkMHA, 2
	}
	return WorkNone, 0
}
