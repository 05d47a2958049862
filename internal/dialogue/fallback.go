package dialogue

import (
	"context"
	"fmt"
)

// FallbackService tries a primary provider and falls back to a secondary one
// when the primary errors. Both failures are reported together so the caller
// can see what actually went wrong upstream.
type FallbackService struct {
	Primary   Service
	Secondary Service
}

func NewFallbackService(primary, secondary Service) *FallbackService {
	return &FallbackService{Primary: primary, Secondary: secondary}
}

func (f *FallbackService) Name() string {
	return fmt.Sprintf("%s+%s", f.Primary.Name(), f.Secondary.Name())
}

func (f *FallbackService) Converse(ctx context.Context, req Request) (*Reply, error) {
	reply, err := f.Primary.Converse(ctx, req)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	reply, ferr := f.Secondary.Converse(ctx, req)
	if ferr != nil {
		return nil, fmt.Errorf("primary failed (%v); fallback failed: %w", err, ferr)
	}
	return reply, nil
}

func (f *FallbackService) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := f.Primary.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return f.Secondary.Embed(ctx, text)
}
