package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"mailroom/internal/constants"
	"mailroom/internal/sanitizer"
	"mailroom/internal/signing"
	"mailroom/pkg/errors"
)

// Resolver turns stored inline assets into short-lived signed URLs.
// Tokens are always minted fresh at resolution time; nothing long-lived
// is cached or persisted.
type Resolver struct {
	repo          Repository
	signer        *signing.Signer
	publicBaseURL string
	tokenTTL      time.Duration
}

func NewResolver(repo Repository, signer *signing.Signer, publicBaseURL string, tokenTTL time.Duration) *Resolver {
	if tokenTTL <= 0 {
		tokenTTL = constants.DefaultTokenTTL
	}
	return &Resolver{
		repo:          repo,
		signer:        signer,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		tokenTTL:      tokenTTL,
	}
}

// SignedAssetURL mints a token scoped to the owning ticket and embeds
// it in the asset-serving URL.
func (r *Resolver) SignedAssetURL(assetID, ticketID, variant string) string {
	token := r.signer.CreateToken(signing.AssetClaims{
		AssetID:   assetID,
		Variant:   variant,
		Audience:  ticketID,
		ExpiresAt: time.Now().Add(r.tokenTTL).Unix(),
	})
	return fmt.Sprintf("%s/api/v1/assets/%s?token=%s", r.publicBaseURL, assetID, url.QueryEscape(token))
}

// BuildCIDMap loads all inline assets of a message for the given
// variant and maps each normalized Content-ID to a fresh signed URL.
func (r *Resolver) BuildCIDMap(ctx context.Context, messageID, variant string) (map[string]string, error) {
	assets, err := r.repo.ListInlineAssets(ctx, messageID, variant)
	if err != nil {
		return nil, fmt.Errorf("failed to load inline assets for %s: %w", messageID, err)
	}

	cidMap := make(map[string]string, len(assets))
	for _, asset := range assets {
		if asset.ContentID == nil || *asset.ContentID == "" {
			continue
		}
		cid := sanitizer.NormalizeCID(*asset.ContentID)
		cidMap[cid] = r.SignedAssetURL(asset.ID, asset.TicketID, asset.Variant)
	}

	return cidMap, nil
}

// ResolveCID is the single-lookup variant of BuildCIDMap. It returns an
// empty string when the message has no inline asset with that CID.
func (r *Resolver) ResolveCID(ctx context.Context, messageID, contentID string) (string, error) {
	cidMap, err := r.BuildCIDMap(ctx, messageID, constants.VariantWeb)
	if err != nil {
		return "", err
	}

	u, ok := cidMap[sanitizer.NormalizeCID(contentID)]
	if !ok {
		return "", errors.ErrNotFound.WithDetail("message",
			fmt.Sprintf("no inline asset with content id %s on message %s", contentID, messageID))
	}
	return u, nil
}
