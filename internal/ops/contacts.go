package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

type contactKey struct {
	LastName  *string `json:"last_name"`
	FirstName *string `json:"first_name"`
}

// SortContacts sorts contacts.json by (last_name, first_name) and writes
// contacts-sorted.json with 4-space indentation. Each contact keeps its
// original fields and field order.
func (h *Handlers) SortContacts(ctx context.Context) (string, error) {
	data, err := h.readFile("contacts.json")
	if err != nil {
		return "", err
	}

	out, err := sortContacts(data)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := h.writeFile("contacts-sorted.json", out); err != nil {
		return "", err
	}
	return "Sorted contacts.", nil
}

func sortContacts(data []byte) ([]byte, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse contacts.json: %w", err)
	}

	keys := make([]contactKey, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &keys[i]); err != nil {
			return nil, fmt.Errorf("contact %d: %w", i, err)
		}
		if keys[i].LastName == nil || keys[i].FirstName == nil {
			return nil, fmt.Errorf("contact %d: missing last_name or first_name", i)
		}
	}

	idx := make([]int, len(raw))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if *ka.LastName != *kb.LastName {
			return *ka.LastName < *kb.LastName
		}
		return *ka.FirstName < *kb.FirstName
	})

	sorted := make([]json.RawMessage, len(raw))
	for i, j := range idx {
		sorted[i] = raw[j]
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(sorted); err != nil {
		return nil, fmt.Errorf("encode contacts: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
