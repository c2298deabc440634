package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pipeviz/insts"
)

var _ = Describe("Insts Package", func() {
	It("should have an Instruction type", func() {
		var i insts.Instruction
		Expect(i).To(BeZero())
	})

	It("should name every catalogue opcode", func() {
		for _, tmpl := range insts.DefaultCatalogue {
			Expect(tmpl.Op.String()).NotTo(HavePrefix("Op("))
			Expect(tmpl.Text).To(HavePrefix(tmpl.Op.String()))
		}
	})

	It("should format unknown opcodes numerically", func() {
		Expect(insts.Op(200).String()).To(Equal("Op(200)"))
	})

	It("should encode opcodes by mnemonic", func() {
		text, err := insts.OpLW.MarshalText()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(text)).To(Equal("LW"))

		var op insts.Op
		Expect(op.UnmarshalText(text)).To(Succeed())
		Expect(op).To(Equal(insts.OpLW))
		Expect(op.UnmarshalText([]byte("NOP"))).NotTo(Succeed())
	})

	Describe("IsControlFlow", func() {
		It("should detect BEQ and JUMP by name", func() {
			Expect((&insts.Instruction{Name: "BEQ R1, R2, LOOP"}).IsControlFlow()).To(BeTrue())
			Expect((&insts.Instruction{Name: "JUMP END"}).IsControlFlow()).To(BeTrue())
		})

		It("should not flag arithmetic or memory instructions", func() {
			Expect((&insts.Instruction{Name: "ADD R1, R2, R3"}).IsControlFlow()).To(BeFalse())
			Expect((&insts.Instruction{Name: "LW R9, 0(R1)"}).IsControlFlow()).To(BeFalse())
		})
	})

	It("should print id and name", func() {
		inst := &insts.Instruction{ID: 3, Name: "SW R9, 4(R4)"}
		Expect(inst.String()).To(Equal("#3 (SW R9, 4(R4))"))
	})
})
