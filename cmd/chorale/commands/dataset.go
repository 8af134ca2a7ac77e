package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chorale-ml/chorale/internal/data"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Dataset utilities",
}

var datasetInspectFlags struct {
	config  string
	batches int
}

var datasetInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Load a sound dataset, split it and pull a few batches",
	Long: `Inspect builds the dataset described by a yaml config, applies the
train/validation split and pulls a few batches from each side, printing
their shapes. Use it to smoke-test a data folder before starting a run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadDatasetConfig(datasetInspectFlags.config)
		if err != nil {
			return err
		}

		ds, err := data.NewSoundDataset(cfg.Folder, data.SoundConfig{
			MaxLength:        cfg.MaxLength,
			TargetSampleRate: cfg.SampleRate,
			SeqLenMultipleOf: cfg.SeqLenMultipleOf,
		})
		if err != nil {
			return err
		}
		fmt.Printf("dataset: %d samples, %d frames each\n", ds.Len(), ds.SampleLength())

		var trainDS, validDS data.Dataset = ds, ds
		if cfg.ValidFrac > 0 {
			train, valid, err := data.RandomSplit(ds, cfg.ValidFrac, cfg.Seed)
			if err != nil {
				return err
			}
			trainDS, validDS = train, valid
			fmt.Printf("split: %d train / %d valid (frac %g, seed %d)\n",
				train.Len(), valid.Len(), cfg.ValidFrac, cfg.Seed)
		} else {
			fmt.Println("split: train and valid share the full dataset")
		}

		for _, side := range []struct {
			name string
			ds   data.Dataset
		}{{"train", trainDS}, {"valid", validDS}} {
			loader, err := data.NewLoader(side.ds, cfg.BatchSize, true, cfg.Seed)
			if err != nil {
				return fmt.Errorf("%s loader: %w", side.name, err)
			}
			for i := 0; i < datasetInspectFlags.batches; i++ {
				batch, err := loader.Next()
				if err != nil {
					return fmt.Errorf("%s batch %d: %w", side.name, i, err)
				}
				for p, field := range batch {
					fmt.Printf("%s batch %d field %d: %s %v\n",
						side.name, i, p, field.DType(), field.Shape())
				}
			}
		}
		return nil
	},
}

func init() {
	datasetInspectCmd.Flags().StringVarP(&datasetInspectFlags.config, "config", "c", "", "yaml dataset config (required)")
	datasetInspectCmd.Flags().IntVarP(&datasetInspectFlags.batches, "batches", "n", 2, "batches to pull per split")
	_ = datasetInspectCmd.MarkFlagRequired("config")
	datasetCmd.AddCommand(datasetInspectCmd)
}
