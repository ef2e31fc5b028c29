package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const backupPrefix = "kessanview-backup-"

// Uploader is the slice of ObjectStore the backup service needs.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]backupObject, error)
	Delete(ctx context.Context, key string) error
}

// backupObject is the minimal object listing shape the service consumes.
type backupObject struct {
	Key  string
	Size int64
}

// storeAdapter adapts ObjectStore to the Uploader interface.
type storeAdapter struct {
	store *ObjectStore
}

func (a *storeAdapter) Upload(ctx context.Context, key string, body io.Reader) error {
	return a.store.Upload(ctx, key, body)
}

func (a *storeAdapter) List(ctx context.Context, prefix string) ([]backupObject, error) {
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]backupObject, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		entry := backupObject{Key: *obj.Key}
		if obj.Size != nil {
			entry.Size = *obj.Size
		}
		out = append(out, entry)
	}
	return out, nil
}

func (a *storeAdapter) Delete(ctx context.Context, key string) error {
	return a.store.Delete(ctx, key)
}

// BackupService archives the data directory's databases and ships them to
// object storage. Databases are copied as plain files; WAL checkpointing is
// handled by closing idle writers before scheduled backups run at night.
type BackupService struct {
	store   Uploader
	dataDir string
	dbNames []string
	log     zerolog.Logger
}

// BackupMetadata describes one backup archive.
type BackupMetadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

// DatabaseMetadata describes one database file inside an archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo summarizes a stored backup for listings.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// NewBackupService creates a backup service covering the given database
// files (basenames without extension) under dataDir.
func NewBackupService(store *ObjectStore, dataDir string, dbNames []string, log zerolog.Logger) *BackupService {
	return &BackupService{
		store:   &storeAdapter{store: store},
		dataDir: dataDir,
		dbNames: dbNames,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUpload builds a tar.gz of all databases plus a metadata file and
// uploads it.
func (s *BackupService) CreateAndUpload(ctx context.Context) error {
	s.log.Info().Msg("Starting backup")
	start := time.Now()

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Databases: make([]DatabaseMetadata, 0, len(s.dbNames)),
	}

	for _, name := range s.dbNames {
		src := filepath.Join(s.dataDir, name+".db")
		dst := filepath.Join(stagingDir, name+".db")

		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}

		info, err := os.Stat(dst)
		if err != nil {
			return fmt.Errorf("failed to stat %s backup: %w", name, err)
		}
		checksum, err := fileChecksum(dst)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", name, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      name,
			Filename:  name + ".db",
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := backupPrefix + time.Now().Format("2006-01-02-150405") + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	files := make([]string, 0, len(s.dbNames)+1)
	for _, name := range s.dbNames {
		files = append(files, name+".db")
	}
	files = append(files, "backup-metadata.json")

	if err := createArchive(archivePath, stagingDir, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if err := s.store.Upload(ctx, archiveName, archive); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration", time.Since(start)).
		Str("archive", archiveName).
		Msg("Backup completed")
	return nil
}

// ListBackups returns stored backups, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, backupPrefix) || !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, backupPrefix), ".tar.gz")
		timestamp, err := time.Parse("2006-01-02-150405", stamp)
		if err != nil {
			s.log.Warn().Str("filename", obj.Key).Msg("Unparseable backup filename")
			continue
		}

		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes backups older than retentionDays, always keeping
// the newest three. retentionDays of zero keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}

	const minBackupsToKeep = 3
	if len(backups) <= minBackupsToKeep || retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep || !backup.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("Backup rotation completed")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}
	return nil
}

func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}
