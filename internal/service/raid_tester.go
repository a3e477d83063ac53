package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zraid/internal/domain"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// ModeResult counts test outcomes for one parity mode.
type ModeResult struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Results are the outcome of a RunTests batch.
type Results struct {
	RAID5 ModeResult `json:"raid5"`
	RAID6 ModeResult `json:"raid6"`
}

// RAIDTester simulates shard loss on every image of a directory and checks
// that recovery reproduces the image.
type RAIDTester struct {
	outputDir string
	threshold float64
	quiet     bool
	logger    log.FieldLogger
}

func NewRAIDTester(outputDir string, threshold float64, quiet bool, logger log.FieldLogger) *RAIDTester {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RAIDTester{
		outputDir: outputDir,
		threshold: threshold,
		quiet:     quiet,
		logger:    logger,
	}
}

// RunTests runs the single and dual parity scenarios against every .png,
// .jpg and .jpeg file in dir. Per-image failures are counted, not returned.
func (t *RAIDTester) RunTests(ctx context.Context, dir string) (Results, error) {
	var results Results

	entries, err := os.ReadDir(dir)
	if err != nil {
		return results, fmt.Errorf("failed to read image directory: %w", err)
	}
	if err := os.MkdirAll(t.outputDir, 0o755); err != nil {
		return results, fmt.Errorf("failed to create output directory: %w", err)
	}

	var images []string
	for _, e := range entries {
		if !e.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			images = append(images, e.Name())
		}
	}

	var bar *progressbar.ProgressBar
	if !t.quiet {
		bar = progressbar.Default(int64(len(images)), "testing images")
	}

	for _, name := range images {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		logger := t.logger.WithField("object", name)
		logger.Info("Testing with image")

		obj, err := t.load(filepath.Join(dir, name))
		if err != nil {
			logger.Errorf("Failed to load image: %v", err)
			results.RAID5.Failed++
			results.RAID6.Failed++
			if bar != nil {
				bar.Add(1)
			}
			continue
		}

		base := strings.TrimSuffix(name, filepath.Ext(name))
		t.count(&results.RAID5, domain.RAID5, obj, base, logger)
		t.count(&results.RAID6, domain.RAID6, obj, base, logger)
		if bar != nil {
			bar.Add(1)
		}
	}

	return results, nil
}

func (t *RAIDTester) count(r *ModeResult, mode domain.ParityMode, obj domain.Object, base string, logger log.FieldLogger) {
	similarity, path, err := t.TestRecovery(mode, obj, base)
	switch {
	case err != nil:
		logger.Errorf("%s recovery failed: %v", mode, err)
		r.Failed++
	case similarity < t.threshold:
		logger.Errorf("%s recovery similarity %.4f below threshold %.4f", mode, similarity, t.threshold)
		r.Failed++
	default:
		logger.Debugf("%s recovery saved to %s", mode, path)
		r.Success++
	}
}

func (t *RAIDTester) load(path string) (domain.Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Object{}, err
	}
	defer f.Close()
	return DecodeImage(f)
}

// TestRecovery drops S1 (single parity) or S1 and S2 (dual parity), recovers
// them, saves the reconstructed image as <mode>_recovered_<base>.png and
// returns the fraction of bytes equal to the original.
func (t *RAIDTester) TestRecovery(mode domain.ParityMode, obj domain.Object, base string) (float64, string, error) {
	shards, layout, err := Split(obj)
	if err != nil {
		return 0, "", err
	}

	var recovered domain.ShardSet
	switch mode {
	case domain.RAID5:
		p, err := Parity5(shards)
		if err != nil {
			return 0, "", err
		}
		shards[0] = nil
		recovered, err = Recover5(shards, p)
		if err != nil {
			return 0, "", err
		}
	case domain.RAID6:
		p, q, err := Parity6(shards)
		if err != nil {
			return 0, "", err
		}
		shards[0], shards[1] = nil, nil
		recovered, err = Recover6(shards, p, q)
		if err != nil {
			return 0, "", err
		}
	default:
		return 0, "", fmt.Errorf("cannot test parity mode %q", mode)
	}

	result, err := Reconstruct(recovered, layout)
	if err != nil {
		return 0, "", err
	}

	path := filepath.Join(t.outputDir, fmt.Sprintf("%s_recovered_%s.png", mode, base))
	f, err := os.Create(path)
	if err != nil {
		return 0, "", fmt.Errorf("failed to save recovered image: %w", err)
	}
	if err := EncodePNG(f, result); err != nil {
		f.Close()
		return 0, "", fmt.Errorf("failed to save recovered image: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, "", fmt.Errorf("failed to save recovered image: %w", err)
	}

	return Similarity(obj.Data, result.Data), path, nil
}

// Similarity returns the fraction of positions at which a and b hold the same
// byte. Slices of different length have similarity 0.
func Similarity(a, b []byte) float64 {
	if len(a) != len(b) {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	same := 0
	for i := range a {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a))
}
