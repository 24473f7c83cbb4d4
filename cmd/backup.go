package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-wallet/core/backup"
	"github.com/AvaProtocol/ap-wallet/storage"
)

var (
	backupDir        string
	periodicInterval int
	dbPath           string
	restoreFile      string

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Backup the wallet store",
		Long: `Snapshot the local store holding wallet rows and session keys.

The backup command can run either as a one-time backup or as a periodic
backup process. Backups are stored in the format: /backup_dir/yy-mm-dd-hh-mm/
Use --db-path to specify the store directory to backup.
Use --dir to specify where to store the backups.
Use --interval to enable periodic backups (value in minutes, 0 means one-time backup).`,
		Run: func(cmd *cobra.Command, args []string) {
			runBackup(dbPath, backupDir, periodicInterval)
		},
	}

	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Restore the wallet store from a backup",
		Long: `Restore the local store from a backup archive.

Use --db-path to specify the store directory to restore to.
Use --file to specify the backup file to restore from.`,
		Run: func(cmd *cobra.Command, args []string) {
			runRestore(dbPath, restoreFile)
		},
	}
)

func runBackup(dbPath, backupDir string, intervalMinutes int) {
	fmt.Printf("Starting store backup. DB path: %s, Backup directory: %s\n", dbPath, backupDir)

	db, err := storage.NewWithPath(dbPath)
	if err != nil {
		fmt.Printf("Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	service := backup.NewService(nil, db, backupDir)

	backupFile, err := service.PerformBackup()
	if err != nil {
		fmt.Printf("Backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backup completed successfully to %s\n", backupFile)

	if intervalMinutes == 0 {
		return
	}

	fmt.Printf("Setting up periodic backup every %d minutes\n", intervalMinutes)
	if err := service.StartPeriodicBackup(time.Duration(intervalMinutes) * time.Minute); err != nil {
		fmt.Printf("Failed to start periodic backup: %v\n", err)
		os.Exit(1)
	}
	defer service.StopPeriodicBackup()

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	<-done
}

func runRestore(dbPath, restoreFile string) {
	fmt.Printf("Starting store restore. DB path: %s, Restore file: %s\n", dbPath, restoreFile)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		fmt.Printf("Failed to create DB directory: %v\n", err)
		os.Exit(1)
	}

	db, err := storage.NewWithPath(dbPath)
	if err != nil {
		fmt.Printf("Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Running restore from %s\n", restoreFile)
	if err := backup.Restore(db, restoreFile); err != nil {
		fmt.Printf("Restore operation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Restore completed successfully\n")
}

func init() {
	backupCmd.Flags().StringVar(&dbPath, "db-path", "", "Path to the store directory (required)")
	backupCmd.Flags().StringVar(&backupDir, "dir", "./backup", "Directory to store backups")
	backupCmd.Flags().IntVar(&periodicInterval, "interval", 0, "Run backups periodically (minutes, 0 for one-time)")
	backupCmd.MarkFlagRequired("db-path")
	rootCmd.AddCommand(backupCmd)

	restoreCmd.Flags().StringVar(&dbPath, "db-path", "", "Path to the store directory (required)")
	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "Backup file to restore from (required)")
	restoreCmd.MarkFlagRequired("db-path")
	restoreCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(restoreCmd)
}
