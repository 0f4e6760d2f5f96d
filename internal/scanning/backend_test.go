package scanning

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("New", func() {
	It("builds Tesseract by default", func() {
		scanner, err := New(context.Background(), Config{Tesseract: TesseractConfig{Lang: "spa"}})
		Expect(err).NotTo(HaveOccurred())
		tess, ok := scanner.(*Tesseract)
		Expect(ok).To(BeTrue())
		Expect(tess.cfg.Lang).To(Equal("spa"))
		Expect(tess.cfg.Binary).To(Equal("tesseract"))
	})

	It("builds Ollama with its defaults", func() {
		scanner, err := New(context.Background(), Config{Backend: BackendOllama, OllamaURL: "http://ollama:11434/"})
		Expect(err).NotTo(HaveOccurred())
		ollama, ok := scanner.(*Ollama)
		Expect(ok).To(BeTrue())
		Expect(ollama.baseURL).To(Equal("http://ollama:11434"))
		Expect(ollama.model).To(Equal("llava"))
	})

	It("requires a Gemini key", func() {
		GinkgoT().Setenv("GEMINI_API_KEY", "")
		_, err := New(context.Background(), Config{Backend: BackendGemini})
		Expect(err).To(MatchError(ContainSubstring("api key")))
	})

	It("rejects unknown backends", func() {
		_, err := New(context.Background(), Config{Backend: "textract"})
		Expect(err).To(MatchError(ContainSubstring("textract")))
	})
})
