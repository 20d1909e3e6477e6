package main

import (
	"context"
	"fmt"
	"image"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/halcyonreed/viptr/internal/model"
	"github.com/halcyonreed/viptr/internal/preprocess"
)

func recognizeCmd() *cli.Command {
	var jsonOut bool

	flags := append([]cli.Flag{}, commonModelFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "emit one JSON object per image instead of tab-separated lines",
			Destination: &jsonOut,
		},
	)

	return &cli.Command{
		Name:      "recognize",
		Usage:     "Read text from cropped word images",
		ArgsUsage: "IMAGE [IMAGE...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, LoadConfig())
			log := setupLogger()

			paths := c.Args().Slice()
			if len(paths) == 0 {
				return cli.Exit("error: at least one image path is required", 1)
			}

			rec, proc, err := loadRecognizer(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			imgs := make([]image.Image, 0, len(paths))
			for _, p := range paths {
				img, err := preprocess.DecodeFile(p)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: decode %s: %v", p, err), 1)
				}
				imgs = append(imgs, img)
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
				if jsonOut {
					line, err := json.Marshal(struct {
						Path       string  `json:"path"`
						Value      string  `json:"value"`
						Confidence float32 `json:"confidence"`
					}{Path: paths[i], Value: pred.Text, Confidence: pred.Confidence})
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: encode result: %v", err), 1)
					}
					fmt.Println(string(line))
				} else {
					fmt.Printf("%s\t%s\t%.4f\n", paths[i], pred.Text, pred.Confidence)
				}
			}
			return nil
		},
	}
}
