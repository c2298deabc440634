package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/pipeviz/insts"
	"github.com/sarchlab/pipeviz/timing/pipeline"
)

var _ = Describe("Stage", func() {
	It("should list the five stages in order", func() {
		Expect(pipeline.Stages()).To(Equal([]pipeline.Stage{
			pipeline.StageFetch, pipeline.StageDecode, pipeline.StageExecute,
			pipeline.StageMemory, pipeline.StageWriteback,
		}))
	})

	It("should have long and short names", func() {
		Expect(pipeline.StageMemory.String()).To(Equal("Memory"))
		Expect(pipeline.StageMemory.Short()).To(Equal("MEM"))
		Expect(pipeline.StageNone.String()).To(Equal("None"))
		Expect(pipeline.StageNone.Short()).To(Equal("--"))
		Expect(pipeline.Stage(9).Valid()).To(BeFalse())
	})
})

var _ = Describe("Advance", func() {
	var (
		mockCtrl *gomock.Controller
		detector *MockHazardDetector
		all      []*pipeline.Instruction
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		detector = NewMockHazardDetector(mockCtrl)
		all = pipeline.Track(newBatch("ADD R1, R2, R3", "SUB R4, R1, R5"))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("when the instruction has not started", func() {
		It("should fetch the first instruction without consulting the detector", func() {
			lines := pipeline.Advance(all[0], all, 1, 0, detector)

			Expect(all[0].Stages[pipeline.StageFetch]).To(Equal(pipeline.StageRecord{
				Occupied: true, CycleEntered: 1,
			}))
			Expect(lines).To(ConsistOf(ContainSubstring("enters Fetch")))
		})

		It("should hold a later instruction until its predecessor reached Decode", func() {
			all[0].Stages[pipeline.StageFetch] = pipeline.StageRecord{Occupied: true, CycleEntered: 1}

			lines := pipeline.Advance(all[1], all, 1, 1, detector)

			Expect(lines).To(BeEmpty())
			Expect(all[1].Started()).To(BeFalse())
		})

		It("should fetch a later instruction once its predecessor is in Decode", func() {
			all[0].Stages[pipeline.StageFetch] = pipeline.StageRecord{Occupied: true, CycleEntered: 1}
			all[0].Stages[pipeline.StageDecode] = pipeline.StageRecord{Occupied: true, CycleEntered: 2}

			pipeline.Advance(all[1], all, 2, 1, detector)

			Expect(cycleOf(all[1], pipeline.StageFetch)).To(Equal(uint64(2)))
		})
	})

	Context("when the instruction is in flight", func() {
		BeforeEach(func() {
			all[0].Stages[pipeline.StageFetch] = pipeline.StageRecord{Occupied: true, CycleEntered: 1}
		})

		It("should advance when there is no hazard", func() {
			detector.EXPECT().
				Classify(all[0], pipeline.StageFetch, pipeline.StageDecode, gomock.Nil()).
				Return(pipeline.NoHazard)

			lines := pipeline.Advance(all[0], all, 2, 0, detector)

			Expect(all[0].CurrentStage()).To(Equal(pipeline.StageDecode))
			Expect(cycleOf(all[0], pipeline.StageDecode)).To(Equal(uint64(2)))
			Expect(lines).To(ConsistOf(ContainSubstring("advances from Fetch to Decode")))
		})

		It("should stall in place on a hazard", func() {
			detector.EXPECT().
				Classify(all[0], pipeline.StageFetch, pipeline.StageDecode, gomock.Any()).
				Return(pipeline.Hazard{Occurred: true, Kind: pipeline.HazardWAW})

			lines := pipeline.Advance(all[0], all, 2, 0, detector)

			Expect(all[0].CurrentStage()).To(Equal(pipeline.StageFetch))
			Expect(all[0].Stages[pipeline.StageFetch]).To(Equal(pipeline.StageRecord{
				Occupied: true, CycleEntered: 1, Stalled: true, Hazard: pipeline.HazardWAW,
			}))
			Expect(all[0].Phase()).To(Equal(pipeline.PhaseStalled))
			Expect(lines).To(ConsistOf(ContainSubstring("stalls in Fetch due to a WAW hazard")))
		})

		It("should clear the stall when the hazard resolves", func() {
			all[0].Stages[pipeline.StageFetch].Stalled = true
			all[0].Stages[pipeline.StageFetch].Hazard = pipeline.HazardRAW
			detector.EXPECT().Classify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
				Return(pipeline.NoHazard)

			lines := pipeline.Advance(all[0], all, 3, 0, detector)

			Expect(all[0].Stages[pipeline.StageFetch].Stalled).To(BeFalse())
			Expect(all[0].Stages[pipeline.StageFetch].Hazard).To(Equal(pipeline.HazardNone))
			Expect(cycleOf(all[0], pipeline.StageFetch)).To(Equal(uint64(1)))
			Expect(cycleOf(all[0], pipeline.StageDecode)).To(Equal(uint64(3)))
			Expect(lines).To(ConsistOf(ContainSubstring("resolves the RAW hazard and advances")))
		})

		It("should pass the dependency to the detector", func() {
			all[0].Stages[pipeline.StageDecode] = pipeline.StageRecord{Occupied: true, CycleEntered: 2}
			all[1].Stages[pipeline.StageFetch] = pipeline.StageRecord{Occupied: true, CycleEntered: 2}
			all[1].Dependency = 1
			all[1].HasDependency = true

			detector.EXPECT().
				Classify(all[1], pipeline.StageFetch, pipeline.StageDecode, all[0]).
				Return(pipeline.NoHazard)

			pipeline.Advance(all[1], all, 3, 1, detector)
		})

		It("should treat a dangling dependency as none", func() {
			all[0].Dependency = 77
			all[0].HasDependency = true

			detector.EXPECT().
				Classify(all[0], pipeline.StageFetch, pipeline.StageDecode, gomock.Nil()).
				Return(pipeline.NoHazard)

			pipeline.Advance(all[0], all, 2, 0, detector)
		})
	})

	Context("when the instruction has completed", func() {
		It("should leave it untouched", func() {
			for _, s := range pipeline.Stages() {
				all[0].Stages[s] = pipeline.StageRecord{Occupied: true, CycleEntered: uint64(s) + 1}
			}
			before := *all[0]

			lines := pipeline.Advance(all[0], all, 9, 0, detector)

			Expect(lines).To(BeEmpty())
			Expect(*all[0]).To(Equal(before))
			Expect(all[0].Phase()).To(Equal(pipeline.PhaseCompleted))
		})
	})
})

var _ = Describe("Instruction", func() {
	It("should start with empty stage records", func() {
		tracked := pipeline.Track([]*insts.Instruction{{ID: 1, Name: "ADD"}})

		Expect(tracked).To(HaveLen(1))
		Expect(tracked[0].CurrentStage()).To(Equal(pipeline.StageNone))
		Expect(tracked[0].Phase()).To(Equal(pipeline.PhaseNotStarted))
		for _, s := range pipeline.Stages() {
			Expect(tracked[0].Stages[s]).To(BeZero())
		}
	})

	It("should clone stage records independently", func() {
		inst := pipeline.Track(adds(1))[0]
		clone := inst.Clone()
		clone.Stages[pipeline.StageFetch].Occupied = true

		Expect(inst.Started()).To(BeFalse())
		Expect(clone.Instruction).To(BeIdenticalTo(inst.Instruction))
	})

	It("should name phases", func() {
		Expect(pipeline.PhaseRunning.String()).To(Equal("Running"))
		Expect(pipeline.Phase(10).String()).To(Equal("Unknown"))
	})
})
