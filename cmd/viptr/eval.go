package main

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/halcyonreed/viptr/internal/eval"
	"github.com/halcyonreed/viptr/internal/model"
	"github.com/halcyonreed/viptr/internal/preprocess"
)

func evalCmd() *cli.Command {
	var (
		labelsPath string
		imagesDir  string
		batchSize  int64
		jsonOut    bool
	)

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "labels",
			Usage:       "path to JSON labels file (image name -> ground truth)",
			Required:    true,
			Destination: &labelsPath,
		},
		&cli.StringFlag{
			Name:        "images",
			Usage:       "directory containing the labeled images (default: labels file directory)",
			Destination: &imagesDir,
		},
		&cli.Int64Flag{
			Name:        "batch-size",
			Aliases:     []string{"b"},
			Usage:       "crops per forward pass",
			Value:       32,
			Destination: &batchSize,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "emit the summary as JSON",
			Destination: &jsonOut,
		},
	)

	return &cli.Command{
		Name:  "eval",
		Usage: "Score recognition accuracy against a labeled dataset",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, LoadConfig())
			log := setupLogger()

			if batchSize < 1 {
				return cli.Exit("error: batch size must be at least 1", 1)
			}
			labels, err := eval.LoadLabels(labelsPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if imagesDir == "" {
				imagesDir = filepath.Dir(labelsPath)
			}

			rec, proc, err := loadRecognizer(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			names := make([]string, 0, len(labels))
			for name := range labels {
				names = append(names, name)
			}
			sort.Strings(names)

			var (
				m       eval.Metrics
				skipped int
			)
			start := time.Now()
			for lo := 0; lo < len(names); lo += int(batchSize) {
				hi := lo + int(batchSize)
				if hi > len(names) {
					hi = len(names)
				}
				imgs := make([]image.Image, 0, hi-lo)
				gts := make([]string, 0, hi-lo)
				for _, name := range names[lo:hi] {
					img, err := preprocess.DecodeFile(filepath.Join(imagesDir, name))
					if err != nil {
						log.Warn("skipping image", "name", name, "error", err)
						skipped++
						continue
					}
					imgs = append(imgs, img)
					gts = append(gts, labels[name])
				}
				if len(imgs) == 0 {
					continue
				}
				batch, err := proc.Tensor(imgs...)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: preprocess: %v", err), 1)
				}
				res, err := rec.Forward(batch, model.Request{ReturnPreds: true})
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: recognize: %v", err), 1)
				}
				for i, pred := range res.Preds {
					m.Update(gts[i], pred.Text)
				}
			}
			elapsed := time.Since(start)

			s := m.Summary()
			if jsonOut {
				out, err := json.Marshal(s)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: encode summary: %v", err), 1)
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Printf("samples:         %d\n", s.Samples)
			if skipped > 0 {
				fmt.Printf("skipped:         %d\n", skipped)
			}
			fmt.Printf("exact match:     %.4f\n", s.ExactMatch)
			fmt.Printf("caseless match:  %.4f\n", s.CaselessMatch)
			fmt.Printf("char error rate: %.4f\n", s.CharErrorRate)
			if s.Samples > 0 && elapsed > 0 {
				fmt.Printf("throughput:      %.1f crops/s\n", float64(s.Samples)/elapsed.Seconds())
			}
			return nil
		},
	}
}
