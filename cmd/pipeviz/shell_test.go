package main

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/c-bata/go-prompt"

	"github.com/sarchlab/pipeviz/timing/config"
	"github.com/sarchlab/pipeviz/timing/core"
)

var _ = Describe("Shell", func() {
	var (
		out *bytes.Buffer
		sh  *shell
	)

	BeforeEach(func() {
		cfg := config.DefaultConfig()
		cfg.Seed = 21
		out = &bytes.Buffer{}
		sh = newShell(core.NewCore(core.WithConfig(cfg)), out)
	})

	It("should step one cycle by default", func() {
		sh.execute("step")

		Expect(out.String()).To(HavePrefix("Cycle 1:"))
		Expect(out.String()).To(ContainSubstring("Instruction #1"))
	})

	It("should step several cycles", func() {
		sh.execute("step 3")

		Expect(out.String()).To(ContainSubstring("Cycle 3:"))
		Expect(sh.core.Cycle()).To(Equal(uint64(4)))
	})

	It("should reject a bad cycle count", func() {
		sh.execute("step -2")

		Expect(out.String()).To(ContainSubstring("Error: invalid cycle count"))
		Expect(sh.core.Cycle()).To(Equal(uint64(1)))
	})

	It("should describe instructions", func() {
		sh.execute("step")
		sh.execute("describe #1")

		Expect(out.String()).To(ContainSubstring("Fetch: entered in cycle 1"))
	})

	It("should report unknown instructions", func() {
		sh.execute("describe 99")

		Expect(out.String()).To(ContainSubstring("Error: no instruction #99"))
	})

	It("should reset", func() {
		sh.execute("step 4")
		sh.execute("reset")

		Expect(sh.core.Cycle()).To(Equal(uint64(1)))
		Expect(out.String()).To(ContainSubstring("reset to cycle 1"))
	})

	It("should show and change hazard probabilities", func() {
		sh.execute("hazards raw 0.2")
		sh.execute("hazards")

		Expect(out.String()).To(ContainSubstring("raw probability set to 0.2"))
		Expect(out.String()).To(ContainSubstring("raw_probability: 0.2"))
		Expect(sh.core.Config().Hazard.RAWProbability).To(Equal(0.2))
	})

	It("should refuse an invalid probability", func() {
		sh.execute("hazards control 2")

		Expect(out.String()).To(ContainSubstring("Error:"))
		Expect(sh.core.Config().Hazard.ControlProbability).To(Equal(0.5))
	})

	It("should print stats and the diagram", func() {
		sh.execute("step 2")
		out.Reset()

		sh.execute("stats")
		sh.execute("diagram")

		Expect(out.String()).To(ContainSubstring("Cycles: 2"))
		Expect(out.String()).To(ContainSubstring("IF"))
	})

	It("should keep a history and quit", func() {
		sh.execute("  ")
		sh.execute("help")
		sh.execute("bogus")
		sh.execute("history")
		sh.execute("exit")

		Expect(out.String()).To(ContainSubstring(`unknown command "bogus"`))
		Expect(out.String()).To(ContainSubstring("  2. bogus"))
		Expect(sh.history).To(HaveLen(4))
		Expect(sh.quit).To(BeTrue())
	})

	It("should complete command names", func() {
		buf := prompt.NewBuffer()
		buf.InsertText("de", false, true)

		suggestions := sh.complete(*buf.Document())

		Expect(suggestions).To(HaveLen(1))
		Expect(suggestions[0].Text).To(Equal("describe"))
	})
})
