package integration

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"mailroom/internal/assets"
	"mailroom/internal/config"
	"mailroom/internal/ingest"
	"mailroom/internal/logger"
	"mailroom/internal/sanitizer"
	"mailroom/internal/signing"
)

const testSigningSecret = "integration-signing-secret"

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestConfig() config.Config {
	return config.Config{
		Email: config.EmailConfig{
			MaxFileSize:  25 << 20,
			MaxTotalSize: 50 << 20,
		},
		Signing: config.SigningConfig{
			Secret:          testSigningSecret,
			TokenTTLSeconds: 900,
		},
		Ingest: config.IngestConfig{
			Dedup: config.DedupConfig{
				Enabled:      true,
				TTLSeconds:   300,
				OnRedisError: "allow",
			},
		},
	}
}

func createIngestService(t *testing.T, infra *TestInfra, storageRoot string) (*ingest.Service, ingest.Repository) {
	t.Helper()

	cfg := createTestConfig()
	log := createTestLogger()

	signer, err := signing.NewSigner(cfg.Signing.Secret)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	store := assets.NewDiskStore(config.StorageConfig{
		Driver:        "disk",
		Disk:          config.DiskConfig{Root: storageRoot},
		PublicBaseURL: "https://app.example.com",
	})

	repo := ingest.NewRepository(infra.PostgresDB)

	var dedup ingest.DedupCache
	if infra.RedisClient != nil {
		dedup = ingest.NewRedisDedupCache(infra.RedisClient)
	}

	resolver := ingest.NewResolver(repo, signer, "https://app.example.com", 900*time.Second)

	svc := ingest.NewService(
		repo,
		dedup,
		assets.NewService(store, log),
		sanitizer.New(log),
		resolver,
		nil,
		cfg,
		log,
	)

	return svc, repo
}

func makeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func inlineImageEmail(t *testing.T, messageID string) []byte {
	t.Helper()

	pngB64 := base64.StdEncoding.EncodeToString(makeTestPNG(t, 640, 480))
	raw := fmt.Sprintf(`From: Alice <alice@example.com>
Subject: Logo attached
Message-Id: <%s>
MIME-Version: 1.0
Content-Type: multipart/related; boundary="rel"

--rel
Content-Type: text/html; charset="utf-8"

<p>Here is our logo: <img src="cid:logo123"></p>
--rel
Content-Type: image/png; name="logo.png"
Content-Id: <logo123>
Content-Transfer-Encoding: base64
Content-Disposition: inline

%s
--rel--
`, messageID, pngB64)
	return []byte(strings.ReplaceAll(raw, "\n", "\r\n"))
}
