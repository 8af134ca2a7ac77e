package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chorale-ml/chorale/internal/serialization"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Checkpoint utilities",
}

var checkpointInspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Print a checkpoint's header and tensor layout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := serialization.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		header := reader.Header()
		fmt.Printf("format version: %d\n", header.FormatVersion)
		fmt.Printf("model type:     %s\n", header.ModelType)
		fmt.Printf("created at:     %s\n", header.CreatedAt.Format("2006-01-02 15:04:05 MST"))

		if ckpt := header.CheckpointMeta; ckpt != nil && ckpt.IsCheckpoint {
			fmt.Printf("stage:          %s\n", ckpt.Stage)
			fmt.Printf("step:           %d\n", ckpt.Step)
			fmt.Printf("loss:           %g\n", ckpt.Loss)
			fmt.Printf("optimizer:      %s\n", ckpt.OptimizerType)
			fmt.Printf("run id:         %s\n", ckpt.RunID)
		}

		fmt.Printf("tensors:        %d\n", len(header.Tensors))
		for _, tm := range header.Tensors {
			fmt.Printf("  %-40s %-8s %v (%d bytes)\n", tm.Name, tm.DType, tm.Shape, tm.Size)
		}
		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointInspectCmd)
}
