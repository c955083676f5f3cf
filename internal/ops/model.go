package ops

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

const cardPrompt = "This image contains a payment card. Reply with the card number only, digits without spaces."

const transcribePrompt = "Transcribe this audio recording. Reply with the transcript text only."

// CreditCard asks the model for the number on credit_card.png and writes
// its digits to credit-card.txt.
func (h *Handlers) CreditCard(ctx context.Context) (string, error) {
	if h.vision == nil {
		return "", ErrNoModel
	}
	img, err := h.readFile("credit_card.png")
	if err != nil {
		return "", err
	}

	answer, err := h.vision.Extract(ctx, cardPrompt, img, "image/png")
	if err != nil {
		return "", fmt.Errorf("extract card number: %w", err)
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, answer)
	if len(digits) < 12 || len(digits) > 19 {
		return "", fmt.Errorf("model answer %q is not a card number", answer)
	}

	if err := h.writeFile("credit-card.txt", []byte(digits)); err != nil {
		return "", err
	}
	return "Extracted credit card number.", nil
}

// TranscribeAudio asks the model to transcribe audio.mp3 into
// audio-transcription.txt.
func (h *Handlers) TranscribeAudio(ctx context.Context) (string, error) {
	if h.vision == nil {
		return "", ErrNoModel
	}
	audio, err := h.readFile("audio.mp3")
	if err != nil {
		return "", err
	}

	text, err := h.vision.Extract(ctx, transcribePrompt, audio, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("transcribe audio.mp3: %w", err)
	}
	if err := h.writeFile("audio-transcription.txt", []byte(text)); err != nil {
		return "", err
	}
	return "Transcribed audio successfully.", nil
}

// SimilarComments finds the most similar pair of lines in comments.txt and
// writes them, in file order, to comments-similar.txt. Model embeddings are
// used when available; otherwise, or when the model fails, a bag-of-words
// cosine is used.
func (h *Handlers) SimilarComments(ctx context.Context) (string, error) {
	data, err := h.readFile("comments.txt")
	if err != nil {
		return "", err
	}
	var comments []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			comments = append(comments, line)
		}
	}
	if len(comments) < 2 {
		return "", fmt.Errorf("comments.txt: need at least 2 comments, found %d", len(comments))
	}

	vectors, err := h.embed(ctx, comments)
	if err != nil {
		return "", err
	}
	i, j := mostSimilar(vectors)

	out := comments[i] + "\n" + comments[j] + "\n"
	if err := h.writeFile("comments-similar.txt", []byte(out)); err != nil {
		return "", err
	}
	return "Found similar comments.", nil
}

func (h *Handlers) embed(ctx context.Context, texts []string) ([][]float64, error) {
	if h.embedder != nil {
		vecs, err := h.embedder.Embed(ctx, texts)
		if err == nil && len(vecs) == len(texts) {
			out := make([][]float64, len(vecs))
			for i, v := range vecs {
				out[i] = make([]float64, len(v))
				for k, x := range v {
					out[i][k] = float64(x)
				}
			}
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		h.log.Warn("embedding failed, using lexical similarity", zap.Error(err))
	}
	return lexicalVectors(texts), nil
}

// lexicalVectors builds term-frequency vectors over a shared vocabulary.
func lexicalVectors(texts []string) [][]float64 {
	vocab := make(map[string]int)
	tokens := make([][]string, len(texts))
	for i, t := range texts {
		tokens[i] = strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, tok := range tokens[i] {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	out := make([][]float64, len(texts))
	for i, toks := range tokens {
		out[i] = make([]float64, len(vocab))
		for _, tok := range toks {
			out[i][vocab[tok]]++
		}
	}
	return out
}

// mostSimilar returns the indexes, i < j, of the pair with the highest
// cosine similarity. The earliest pair wins ties.
func mostSimilar(vectors [][]float64) (int, int) {
	bi, bj, best := 0, 1, math.Inf(-1)
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			if s := cosine(vectors[i], vectors[j]); s > best {
				bi, bj, best = i, j, s
			}
		}
	}
	return bi, bj
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for k := 0; k < len(a) && k < len(b); k++ {
		dot += a[k] * b[k]
		na += a[k] * a[k]
		nb += b[k] * b[k]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
