package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/billing-killswitch/pkg/manifest"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the project manifest to a bucket",
	Long: `Validate the project manifest and write it as JSON to ` + manifest.BackupKey + `
in a gs:// bucket or a local directory.`,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().StringP("manifest", "m", "", "Project manifest file (default from config)")
	backupCmd.Flags().String("bucket", "", "Bucket URL, e.g. gs://my-bucket (default from config)")
}

func runBackup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("manifest")
	if path == "" {
		path = cfg.Backup.Manifest
	}
	bucketURL, _ := cmd.Flags().GetString("bucket")
	if bucketURL == "" {
		bucketURL = cfg.Backup.BucketURL
	}
	if bucketURL == "" {
		return fmt.Errorf("bucket is required (--bucket or backup.bucket_url)")
	}

	mf, err := manifest.Load(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	bucket, err := manifest.OpenBucket(ctx, bucketURL)
	if err != nil {
		return err
	}
	defer bucket.Close()

	if err := manifest.Backup(ctx, bucket, mf); err != nil {
		return err
	}

	written, err := manifest.Restore(ctx, bucket)
	if err != nil {
		return fmt.Errorf("verify backup: %w", err)
	}
	if len(written.Projects) != len(mf.Projects) {
		return fmt.Errorf("verify backup: wrote %d projects, read back %d", len(mf.Projects), len(written.Projects))
	}

	fmt.Printf("Backed up %d project(s) to %s/%s\n", len(mf.Projects), bucketURL, manifest.BackupKey)
	return nil
}
