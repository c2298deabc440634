package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/pipeviz/insts"
	"github.com/sarchlab/pipeviz/timing/config"
	"github.com/sarchlab/pipeviz/timing/pipeline"
)

var _ = Describe("HazardUnit", func() {
	var (
		mockCtrl   *gomock.Controller
		rng        *MockRandomSource
		hazardUnit *pipeline.HazardUnit

		inst *pipeline.Instruction
		dep  *pipeline.Instruction
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		rng = NewMockRandomSource(mockCtrl)
		hazardUnit = pipeline.NewHazardUnit(rng, nil)

		dep = &pipeline.Instruction{Instruction: &insts.Instruction{
			ID: 1, Name: "LW R9, 0(R1)", Op: insts.OpLW,
		}}
		inst = &pipeline.Instruction{Instruction: &insts.Instruction{
			ID: 2, Name: "ADD R1, R2, R3", Op: insts.OpADD,
			Dependency: 1, HasDependency: true,
		}}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("without a dependency", func() {
		It("should inject a hazard of a random kind below the background probability", func() {
			rng.EXPECT().Float64().Return(0.10)
			rng.EXPECT().Intn(4).Return(1)

			hazard := hazardUnit.Classify(inst, pipeline.StageFetch, pipeline.StageDecode, nil)

			Expect(hazard).To(Equal(pipeline.Hazard{Occurred: true, Kind: pipeline.HazardWAR}))
		})

		It("should draw from RAW, WAR, WAW and Structural", func() {
			kinds := []pipeline.HazardKind{}
			for i := 0; i < 4; i++ {
				rng.EXPECT().Float64().Return(0.0)
				rng.EXPECT().Intn(4).Return(i)
				hazard := hazardUnit.Classify(inst, pipeline.StageDecode, pipeline.StageExecute, nil)
				kinds = append(kinds, hazard.Kind)
			}

			Expect(kinds).To(Equal([]pipeline.HazardKind{
				pipeline.HazardRAW, pipeline.HazardWAR,
				pipeline.HazardWAW, pipeline.HazardStructural,
			}))
		})

		It("should not stall at or above the background probability", func() {
			rng.EXPECT().Float64().Return(0.15)

			hazard := hazardUnit.Classify(inst, pipeline.StageFetch, pipeline.StageDecode, nil)

			Expect(hazard).To(Equal(pipeline.NoHazard))
		})
	})

	Context("when entering Execute before the dependency wrote back", func() {
		It("should report RAW below 70%", func() {
			rng.EXPECT().Float64().Return(0.69)

			hazard := hazardUnit.Classify(inst, pipeline.StageDecode, pipeline.StageExecute, dep)

			Expect(hazard).To(Equal(pipeline.Hazard{Occurred: true, Kind: pipeline.HazardRAW}))
		})

		It("should let the instruction advance otherwise", func() {
			rng.EXPECT().Float64().Return(0.70)

			hazard := hazardUnit.Classify(inst, pipeline.StageDecode, pipeline.StageExecute, dep)

			Expect(hazard.Occurred).To(BeFalse())
		})

		It("should take precedence over the control rule", func() {
			inst.Name = "BEQ R1, R2, LOOP"
			rng.EXPECT().Float64().Return(0.80)

			hazard := hazardUnit.Classify(inst, pipeline.StageDecode, pipeline.StageExecute, dep)

			Expect(hazard.Occurred).To(BeFalse())
		})
	})

	Context("when the dependency has written back", func() {
		BeforeEach(func() {
			for s := range dep.Stages {
				dep.Stages[s] = pipeline.StageRecord{Occupied: true, CycleEntered: uint64(s + 1)}
			}
		})

		It("should not consult the random source for arithmetic entering Execute", func() {
			hazard := hazardUnit.Classify(inst, pipeline.StageDecode, pipeline.StageExecute, dep)

			Expect(hazard).To(Equal(pipeline.NoHazard))
		})
	})

	Context("when moving from Execute to Memory", func() {
		It("should report Structural below 30%", func() {
			rng.EXPECT().Float64().Return(0.29)

			hazard := hazardUnit.Classify(inst, pipeline.StageExecute, pipeline.StageMemory, dep)

			Expect(hazard).To(Equal(pipeline.Hazard{Occurred: true, Kind: pipeline.HazardStructural}))
		})

		It("should not stall at 30%", func() {
			rng.EXPECT().Float64().Return(0.30)

			hazard := hazardUnit.Classify(inst, pipeline.StageExecute, pipeline.StageMemory, dep)

			Expect(hazard.Occurred).To(BeFalse())
		})
	})

	Context("for dependent branches and jumps", func() {
		It("should report Control below 50% for BEQ", func() {
			inst.Name = "BEQ R1, R2, LOOP"
			rng.EXPECT().Float64().Return(0.49)

			hazard := hazardUnit.Classify(inst, pipeline.StageFetch, pipeline.StageDecode, dep)

			Expect(hazard).To(Equal(pipeline.Hazard{Occurred: true, Kind: pipeline.HazardControl}))
		})

		It("should report Control for JUMP on the Memory to Writeback move", func() {
			inst.Name = "JUMP END"
			rng.EXPECT().Float64().Return(0.0)

			hazard := hazardUnit.Classify(inst, pipeline.StageMemory, pipeline.StageWriteback, dep)

			Expect(hazard.Kind).To(Equal(pipeline.HazardControl))
		})

		It("should not stall arithmetic on other transitions", func() {
			hazard := hazardUnit.Classify(inst, pipeline.StageFetch, pipeline.StageDecode, dep)

			Expect(hazard).To(Equal(pipeline.NoHazard))
		})
	})

	Describe("SetConfig", func() {
		It("should apply new probabilities", func() {
			cfg := config.DefaultHazardConfig()
			cfg.RAWProbability = 0
			hazardUnit.SetConfig(cfg)
			rng.EXPECT().Float64().Return(0.0)

			hazard := hazardUnit.Classify(inst, pipeline.StageDecode, pipeline.StageExecute, dep)

			Expect(hazard.Occurred).To(BeFalse())
			Expect(hazardUnit.Config().RAWProbability).To(Equal(0.0))
		})

		It("should not share the caller's config", func() {
			cfg := config.DefaultHazardConfig()
			hazardUnit.SetConfig(cfg)
			cfg.RAWProbability = 0

			Expect(hazardUnit.Config().RAWProbability).To(Equal(0.70))
		})
	})
})

var _ = Describe("HazardKind", func() {
	It("should name every kind", func() {
		Expect(pipeline.HazardRAW.String()).To(Equal("RAW"))
		Expect(pipeline.HazardWAR.String()).To(Equal("WAR"))
		Expect(pipeline.HazardWAW.String()).To(Equal("WAW"))
		Expect(pipeline.HazardControl.String()).To(Equal("Control"))
		Expect(pipeline.HazardStructural.String()).To(Equal("Structural"))
		Expect(pipeline.HazardKind(42).String()).To(Equal("HazardKind(42)"))
	})

	It("should describe the kind", func() {
		Expect(pipeline.HazardRAW.Description()).To(HavePrefix("Read-After-Write"))
	})

	It("should round trip through text", func() {
		text, err := pipeline.HazardWAW.MarshalText()
		Expect(err).NotTo(HaveOccurred())

		var kind pipeline.HazardKind
		Expect(kind.UnmarshalText(text)).To(Succeed())
		Expect(kind).To(Equal(pipeline.HazardWAW))
		Expect(kind.UnmarshalText([]byte("bogus"))).To(HaveOccurred())
	})
})
