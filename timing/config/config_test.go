package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/pipeviz/timing/config"
)

var _ = Describe("HazardConfig", func() {
	It("should carry the reference probabilities by default", func() {
		cfg := config.DefaultHazardConfig()

		Expect(cfg.RAWProbability).To(Equal(0.70))
		Expect(cfg.StructuralProbability).To(Equal(0.30))
		Expect(cfg.ControlProbability).To(Equal(0.50))
		Expect(cfg.BackgroundProbability).To(Equal(0.15))
		Expect(cfg.Validate()).To(Succeed())
	})

	It("should reject probabilities outside [0, 1]", func() {
		cfg := config.DefaultHazardConfig()
		cfg.ControlProbability = 1.5
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("control_probability")))

		cfg = config.DefaultHazardConfig()
		cfg.RAWProbability = -0.1
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("raw_probability")))
	})

	It("should clone independently", func() {
		cfg := config.DefaultHazardConfig()
		clone := cfg.Clone()
		clone.BackgroundProbability = 0

		Expect(cfg.BackgroundProbability).To(Equal(0.15))
	})
})

var _ = Describe("Config", func() {
	It("should have usable defaults", func() {
		cfg := config.DefaultConfig()

		Expect(cfg.BatchSize).To(Equal(5))
		Expect(cfg.DependencyProbability).To(Equal(1.0))
		Expect(cfg.TickInterval).To(Equal(time.Second))
		Expect(cfg.Validate()).To(Succeed())
	})

	It("should reject an empty batch", func() {
		cfg := config.DefaultConfig()
		cfg.BatchSize = 0
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("should wrap hazard validation errors", func() {
		cfg := config.DefaultConfig()
		cfg.Hazard.StructuralProbability = 2
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("invalid hazard config")))
	})

	It("should reject a negative interval", func() {
		cfg := config.DefaultConfig()
		cfg.TickInterval = -time.Millisecond
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("should keep an explicit seed", func() {
		cfg := config.DefaultConfig()
		cfg.Seed = 1234
		Expect(cfg.EffectiveSeed()).To(Equal(int64(1234)))
	})

	It("should save as JSON", func() {
		path := filepath.Join(GinkgoT().TempDir(), "pipeviz.json")
		cfg := config.DefaultConfig()
		cfg.Seed = 9

		Expect(cfg.SaveConfig(path)).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		loaded := &config.Config{}
		Expect(json.Unmarshal(data, loaded)).To(Succeed())
		Expect(loaded).To(Equal(cfg))
	})

	It("should save as YAML for a .yaml path", func() {
		path := filepath.Join(GinkgoT().TempDir(), "pipeviz.yaml")
		cfg := config.DefaultConfig()
		cfg.BatchSize = 8

		Expect(cfg.SaveConfig(path)).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("batch_size: 8"))
		Expect(string(data)).To(ContainSubstring("raw_probability: 0.7"))

		loaded := &config.Config{}
		Expect(yaml.Unmarshal(data, loaded)).To(Succeed())
		Expect(loaded).To(Equal(cfg))
	})
})
