package ports

import "context"

// Corrector post-processes transcript text through a remote language model.
// Each method is a single remote call; retries belong to the caller.
type Corrector interface {
	Correct(ctx context.Context, text, languageHint string) (string, error)
	Summarize(ctx context.Context, text, languageHint string) (string, error)
	ExtractKeywords(ctx context.Context, text, languageHint string) ([]string, error)
}
