package config

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

// setenv sets an environment variable until the test finishes
func setenv(key, value string) {
	old, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

// unsetenv clears an environment variable until the test finishes
func unsetenv(key string) {
	old, had := os.LookupEnv(key)
	Expect(os.Unsetenv(key)).To(Succeed())
	DeferCleanup(func() {
		if had {
			os.Setenv(key, old)
		}
	})
}

var _ = Describe("LoadSecrets", func() {
	When("the keys are set", func() {
		BeforeEach(func() {
			setenv("OPENAI_API_KEY", "sk-openai")
			setenv("GEMINI_API_KEY", "gm-key")
		})

		It("reads them", func() {
			s, err := LoadSecrets()
			Expect(err).NotTo(HaveOccurred())
			Expect(s.OpenAIKey).To(Equal("sk-openai"))
			Expect(s.GeminiKey).To(Equal("gm-key"))
		})
	})

	When("the keys are unset", func() {
		BeforeEach(func() {
			unsetenv("OPENAI_API_KEY")
			unsetenv("GEMINI_API_KEY")
		})

		It("returns empty secrets", func() {
			s, err := LoadSecrets()
			Expect(err).NotTo(HaveOccurred())
			Expect(s).To(Equal(Secrets{}))
		})
	})
})

var _ = Describe("LoadTelemetry", func() {
	When("nothing is set", func() {
		BeforeEach(func() {
			unsetenv("RECEIPT_SCANNER_OTEL_ENDPOINT")
			unsetenv("RECEIPT_SCANNER_OTEL_ENABLED")
		})

		It("is enabled without an endpoint", func() {
			t, err := LoadTelemetry()
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Enabled).To(BeTrue())
			Expect(t.Endpoint).To(BeEmpty())
		})
	})

	When("the enabled flag is malformed", func() {
		BeforeEach(func() {
			setenv("RECEIPT_SCANNER_OTEL_ENABLED", "sometimes")
		})

		It("returns a parse error", func() {
			_, err := LoadTelemetry()
			Expect(err).To(MatchError(ContainSubstring("parse env:")))
		})
	})
})
