package llm_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"meshforge.app/studio/common/llm"
)

var _ = Describe("NewStreamClient", func() {
	It("requires an API key", func() {
		_, err := llm.NewStreamClient(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(MatchError(ContainSubstring("API key")))
	})

	It("rejects unknown providers", func() {
		_, err := llm.NewStreamClient(llm.Config{Provider: "bard", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	It("defaults to anthropic", func() {
		client, err := llm.NewStreamClient(llm.Config{APIKey: "k", Model: "claude-test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("claude-test"))
	})

	It("selects openai when configured", func() {
		client, err := llm.NewStreamClient(llm.Config{Provider: llm.ProviderOpenAI, APIKey: "k", Model: "gpt-test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("gpt-test"))
	})
})

var _ = Describe("NewVisionClient", func() {
	It("defaults to openai", func() {
		client, err := llm.NewVisionClient(llm.Config{APIKey: "k", Model: "gpt-vision"})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("gpt-vision"))
	})
})

var _ = Describe("GenerateSchema", func() {
	type sample struct {
		Issues []string `json:"issues"`
		Plan   string   `json:"plan"`
	}

	It("produces a non-nil schema for a struct type", func() {
		Expect(llm.GenerateSchema[sample]()).NotTo(BeNil())
	})
})
