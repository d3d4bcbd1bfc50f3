package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fpsync/internal/classify"
	"fpsync/internal/device"
	"fpsync/internal/extract"
	"fpsync/internal/recordstore"
)

type extractResult struct {
	Text         string          `json:"text"`
	Manufacturer string          `json:"manufacturer_token,omitempty"`
	Product      string          `json:"product_token,omitempty"`
	Confidence   int             `json:"confidence_score"`
	Category     device.Category `json:"category"`
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:         "extract [text...]",
		Short:       "Show the candidate extracted from free text",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := append([]string(nil), args...)
			if fromStdin {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
				for scanner.Scan() {
					if line := strings.TrimSpace(scanner.Text()); line != "" {
						texts = append(texts, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			if len(texts) == 0 {
				return errors.New("provide text arguments or --stdin")
			}

			results := make([]extractResult, 0, len(texts))
			for i, text := range texts {
				finding := extract.Extract(device.SourceFinding{
					Source:   device.SourceWeb,
					OriginID: "cli:" + strconv.Itoa(i+1),
					RawText:  text,
				})
				res := extractResult{
					Text:       text,
					Confidence: finding.ConfidenceScore,
					Category:   classify.ClassifyText(text),
				}
				if finding.ExtractedPair != nil {
					res.Manufacturer = finding.ExtractedPair.ManufacturerToken
					res.Product = finding.ExtractedPair.ProductToken
				}
				results = append(results, res)
			}

			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, results)
			}
			rows := make([][]string, 0, len(results))
			for _, res := range results {
				rows = append(rows, []string{
					res.Text,
					valueOrDash(res.Manufacturer),
					valueOrDash(res.Product),
					strconv.Itoa(res.Confidence),
					string(res.Category),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable("",
				[]string{"Text", "Manufacturer", "Product", "Confidence", "Category"},
				rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read one text per line from stdin")
	return cmd
}

type classifyResult struct {
	ID         string          `json:"id"`
	Current    device.Category `json:"current,omitempty"`
	Classified device.Category `json:"classified"`
	Agrees     bool            `json:"agrees"`
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:         "classify [record-file|record-id...]",
		Short:       "Classify records or free text",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(text) != "" {
				category := classify.ClassifyText(text)
				if ctx.jsonOutput(cmd) {
					return writeJSON(cmd, map[string]device.Category{"category": category})
				}
				fmt.Fprintln(cmd.OutOrStdout(), category)
				return nil
			}
			if len(args) == 0 {
				return errors.New("provide record files, record ids or --text")
			}

			records, err := resolveRecords(ctx, args)
			if err != nil {
				return err
			}
			results := make([]classifyResult, 0, len(records))
			for _, record := range records {
				classified := classify.Classify(record)
				results = append(results, classifyResult{
					ID:         record.ID,
					Current:    record.Category,
					Classified: classified,
					Agrees:     record.Category == device.CategoryNone || record.Category == classified,
				})
			}

			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, results)
			}
			rows := make([][]string, 0, len(results))
			for _, res := range results {
				rows = append(rows, []string{res.ID, valueOrDash(string(res.Current)), string(res.Classified), yesNo(res.Agrees)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable("",
				[]string{"Record", "Current", "Classified", "Agrees"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Classify free text instead of records")
	return cmd
}

// resolveRecords decodes arguments that name record files and looks the
// rest up by id in the configured corpus.
func resolveRecords(ctx *commandContext, args []string) ([]*device.DeviceRecord, error) {
	var (
		records []*device.DeviceRecord
		ids     []string
	)
	for _, arg := range args {
		data, err := os.ReadFile(arg)
		if errors.Is(err, fs.ErrNotExist) {
			ids = append(ids, arg)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", arg, err)
		}
		record, err := recordstore.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		records = append(records, record)
	}
	if len(ids) == 0 {
		return records, nil
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	corpus, _, err := recordstore.New(cfg.Paths.CorpusDir, nil).Load()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*device.DeviceRecord, len(corpus))
	for _, record := range corpus {
		byID[record.ID] = record
	}
	for _, id := range ids {
		record, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("record %q not found in %s", id, cfg.Paths.CorpusDir)
		}
		records = append(records, record)
	}
	return records, nil
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
