package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
)

// Rendition is one variant of the packaged recording: a resolution height and
// the absolute URL of its media playlist.
type Rendition struct {
	Height      int
	PlaylistURL string
}

// ManifestService fetches an adaptive-streaming manifest and extracts its
// variant renditions.
type ManifestService struct {
	client *http.Client
}

func NewManifestService() *ManifestService {
	return &ManifestService{
		client: &http.Client{
			Timeout: 0, // Use context timeout instead
		},
	}
}

// ManifestURL derives the public URL of an object in the destination bucket.
func ManifestURL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}

// FetchRenditions downloads the variant playlist at manifestURL and returns
// one Rendition per variant, ordered by ascending height. Sub-playlist URIs
// are resolved against the manifest URL.
func (m *ManifestService) FetchRenditions(ctx context.Context, manifestURL string) ([]Rendition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest fetch returned status %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if listType != m3u8.MASTER {
		return nil, fmt.Errorf("manifest at %s is not a variant playlist", manifestURL)
	}
	master := playlist.(*m3u8.MasterPlaylist)

	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest url: %w", err)
	}

	renditions := make([]Rendition, 0, len(master.Variants))
	for _, variant := range master.Variants {
		if variant == nil || variant.URI == "" {
			continue
		}
		// Audio-only and I-frame variants carry no RESOLUTION attribute;
		// there is nothing to transcode for them.
		if variant.Resolution == "" {
			continue
		}
		height, err := variantHeight(variant.Resolution)
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", variant.URI, err)
		}
		ref, err := url.Parse(variant.URI)
		if err != nil {
			return nil, fmt.Errorf("variant %q: invalid uri: %w", variant.URI, err)
		}
		renditions = append(renditions, Rendition{
			Height:      height,
			PlaylistURL: base.ResolveReference(ref).String(),
		})
	}
	if len(renditions) == 0 {
		return nil, fmt.Errorf("manifest at %s lists no variants", manifestURL)
	}

	sort.Slice(renditions, func(i, j int) bool { return renditions[i].Height < renditions[j].Height })
	return renditions, nil
}

// variantHeight extracts the height from a RESOLUTION attribute ("1280x720").
func variantHeight(resolution string) (int, error) {
	_, h, ok := strings.Cut(resolution, "x")
	if !ok {
		return 0, fmt.Errorf("malformed resolution %q", resolution)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("malformed resolution %q", resolution)
	}
	return height, nil
}
