// Package vmimage implements the VM Image Manager: it maintains the
// Base/Snapshot disk image tree on the local filesystem plus a parallel
// table row, shelling out to qemu-img for every disk operation the way
// the teacher's own internal/sync.GitClient shells out to git — capture
// combined output, fold it into the returned error on failure.
package vmimage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"nanocld/internal/apperrors"
	"nanocld/internal/logger"
	"nanocld/internal/models"
	"nanocld/internal/store"
)

type Table struct{}

func (Table) TableName() string        { return "vm_images" }
func (Table) PrimaryKeyColumn() string { return "name" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"name":         {SQLPath: "name", Kind: store.KindText},
		"kind":         {SQLPath: "kind", Kind: store.KindText},
		"path":         {SQLPath: "path", Kind: store.KindText},
		"format":       {SQLPath: "format", Kind: store.KindText},
		"size_actual":  {SQLPath: "size_actual", Kind: store.KindInt},
		"size_virtual": {SQLPath: "size_virtual", Kind: store.KindInt},
		"parent":       {SQLPath: "parent", Kind: store.KindText},
		"created_at":   {SQLPath: "created_at", Kind: store.KindTime},
	}
}

func scan(row store.RowScanner) (models.VmImage, error) {
	var img models.VmImage
	var parent *string
	err := row.Scan(&img.Name, &img.Kind, &img.Path, &img.Format, &img.SizeActual, &img.SizeVirtual, &parent, &img.CreatedAt)
	img.Parent = parent
	return img, err
}

// qemuImgInfo is the subset of `qemu-img info --output=json` this
// manager reads.
type qemuImgInfo struct {
	Format      string `json:"format"`
	VirtualSize int64  `json:"virtual-size"`
	ActualSize  int64  `json:"actual-size"`
}

// runner shells out to qemu-img, capturing combined output for error
// messages. Replaced in tests so no real binary is required.
type runner func(ctx context.Context, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "qemu-img", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("qemu-img %v failed: %w\noutput: %s", args, err, string(out))
	}
	return out, nil
}

// Manager is the VM Image Manager.
type Manager struct {
	repo    *store.Repository[models.VmImage]
	run     runner
	baseDir string
}

func New(gw *store.Gateway, baseDir string) *Manager {
	return &Manager{repo: store.NewRepository[models.VmImage](gw, Table{}, scan), run: defaultRunner, baseDir: baseDir}
}

// Exists satisfies the Vm Object Manager's imageChecker capability.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	_, err := m.repo.ReadByPK(ctx, name)
	if err != nil {
		if ae := apperrors.As(err); ae.Kind == apperrors.KindNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *Manager) inspect(ctx context.Context, path string) (qemuImgInfo, error) {
	out, err := m.run(ctx, "info", "--output=json", path)
	if err != nil {
		return qemuImgInfo{}, apperrors.Internal("failed to inspect disk image", err)
	}
	var info qemuImgInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return qemuImgInfo{}, apperrors.Internal("failed to parse qemu-img output", err)
	}
	return info, nil
}

// Create registers a Base image from a file that already exists on
// disk. On inspection failure, the file is deleted and the error
// propagates (§4.9).
func (m *Manager) Create(ctx context.Context, name, path string) (models.VmImage, error) {
	info, err := m.inspect(ctx, path)
	if err != nil {
		os.Remove(path)
		return models.VmImage{}, err
	}
	img := models.VmImage{
		Name:        name,
		Kind:        models.VmImageBase,
		Path:        path,
		Format:      info.Format,
		SizeActual:  info.ActualSize,
		SizeVirtual: info.VirtualSize,
		CreatedAt:   time.Now(),
	}
	insert := `
		INSERT INTO vm_images (name, kind, path, format, size_actual, size_virtual, parent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, $7)
	`
	if err := m.repo.Create(ctx, insert, img.Name, img.Kind, img.Path, img.Format, img.SizeActual, img.SizeVirtual, img.CreatedAt); err != nil {
		return models.VmImage{}, err
	}
	logger.Task().Info().Str("image", name).Msg("vm image registered")
	return img, nil
}

// CreateSnap creates a qcow2 snapshot backed by base, resized to
// sizeGB, and registers it as a Snapshot row. Fails with Conflict if
// snapName already exists.
func (m *Manager) CreateSnap(ctx context.Context, snapName string, sizeGB int64, baseName string) (models.VmImage, error) {
	if _, err := m.repo.ReadByPK(ctx, snapName); err == nil {
		return models.VmImage{}, apperrors.Conflict("vm image %q already exists", snapName)
	}
	base, err := m.repo.ReadByPK(ctx, baseName)
	if err != nil {
		return models.VmImage{}, err
	}
	if base.Kind != models.VmImageBase {
		return models.VmImage{}, apperrors.BadInput("vm image %q is not a Base", baseName)
	}

	path := filepath.Join(m.baseDir, snapName+".qcow2")
	if _, err := m.run(ctx, "create", "-f", "qcow2", "-b", base.Path, "-F", base.Format, path); err != nil {
		return models.VmImage{}, apperrors.Internal("failed to create vm image snapshot", err)
	}
	if _, err := m.run(ctx, "resize", path, strconv.FormatInt(sizeGB, 10)+"G"); err != nil {
		os.Remove(path)
		return models.VmImage{}, apperrors.Internal("failed to resize vm image snapshot", err)
	}

	info, err := m.inspect(ctx, path)
	if err != nil {
		os.Remove(path)
		return models.VmImage{}, err
	}
	parent := baseName
	img := models.VmImage{
		Name:        snapName,
		Kind:        models.VmImageSnapshot,
		Path:        path,
		Format:      info.Format,
		SizeActual:  info.ActualSize,
		SizeVirtual: info.VirtualSize,
		Parent:      &parent,
		CreatedAt:   time.Now(),
	}
	insert := `
		INSERT INTO vm_images (name, kind, path, format, size_actual, size_virtual, parent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if err := m.repo.Create(ctx, insert, img.Name, img.Kind, img.Path, img.Format, img.SizeActual, img.SizeVirtual, img.Parent, img.CreatedAt); err != nil {
		return models.VmImage{}, err
	}
	return img, nil
}

// CloneProgress is one line of Clone's progress stream; Done is set only
// on the final line.
type CloneProgress struct {
	Progress float64          `json:"Progress,omitempty"`
	Done     *models.VmImage  `json:"Done,omitempty"`
}

// Clone produces a new qcow2 Base from a Snapshot, streaming progress
// lines on progress before sending the terminal Done line.
func (m *Manager) Clone(ctx context.Context, name, snapshotName string, progress chan<- CloneProgress) error {
	defer close(progress)
	snap, err := m.repo.ReadByPK(ctx, snapshotName)
	if err != nil {
		return err
	}
	if snap.Kind != models.VmImageSnapshot {
		return apperrors.BadInput("vm image %q is not a Snapshot", snapshotName)
	}
	path := filepath.Join(m.baseDir, name+".qcow2")

	cmd := exec.CommandContext(ctx, "qemu-img", "convert", "-p", "-O", "qcow2", snap.Path, path)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperrors.Internal("failed to attach to qemu-img convert", err)
	}
	if err := cmd.Start(); err != nil {
		return apperrors.Internal("failed to start qemu-img convert", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Split(bufio.ScanRunes)
	var digits []byte
	for scanner.Scan() {
		r := scanner.Bytes()
		if (r[0] >= '0' && r[0] <= '9') || r[0] == '.' {
			digits = append(digits, r...)
			continue
		}
		if len(digits) > 0 {
			if pct, perr := strconv.ParseFloat(string(digits), 64); perr == nil {
				progress <- CloneProgress{Progress: pct}
			}
			digits = nil
		}
	}
	if err := cmd.Wait(); err != nil {
		return apperrors.Internal("qemu-img convert failed", err)
	}

	info, err := m.inspect(ctx, path)
	if err != nil {
		os.Remove(path)
		return err
	}
	img := models.VmImage{
		Name:        name,
		Kind:        models.VmImageBase,
		Path:        path,
		Format:      info.Format,
		SizeActual:  info.ActualSize,
		SizeVirtual: info.VirtualSize,
		CreatedAt:   time.Now(),
	}
	insert := `
		INSERT INTO vm_images (name, kind, path, format, size_actual, size_virtual, parent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, $7)
	`
	if err := m.repo.Create(ctx, insert, img.Name, img.Kind, img.Path, img.Format, img.SizeActual, img.SizeVirtual, img.CreatedAt); err != nil {
		return err
	}
	progress <- CloneProgress{Done: &img}
	return nil
}

// Resize runs qemu-img resize (--shrink when requested) and updates the
// stored size fields.
func (m *Manager) Resize(ctx context.Context, name string, sizeGB int64, shrink bool) (models.VmImage, error) {
	img, err := m.repo.ReadByPK(ctx, name)
	if err != nil {
		return models.VmImage{}, err
	}
	args := []string{"resize"}
	if shrink {
		args = append(args, "--shrink")
	}
	args = append(args, img.Path, strconv.FormatInt(sizeGB, 10)+"G")
	if _, err := m.run(ctx, args...); err != nil {
		return models.VmImage{}, apperrors.Internal("failed to resize vm image", err)
	}
	info, err := m.inspect(ctx, img.Path)
	if err != nil {
		return models.VmImage{}, err
	}
	if err := m.repo.UpdatePK(ctx, name, map[string]interface{}{
		"size_actual":  info.ActualSize,
		"size_virtual": info.VirtualSize,
	}); err != nil {
		return models.VmImage{}, err
	}
	return m.InspectObjByPK(ctx, name)
}

func (m *Manager) InspectObjByPK(ctx context.Context, name string) (models.VmImage, error) {
	return m.repo.ReadByPK(ctx, name)
}

// DelObjByPK refuses if the image has children (P6), else removes the
// file and the row.
func (m *Manager) DelObjByPK(ctx context.Context, name string) error {
	img, err := m.repo.ReadByPK(ctx, name)
	if err != nil {
		return err
	}
	children, err := m.repo.CountBy(ctx, store.NewFilter().Where("parent", store.Eq, name))
	if err != nil {
		return err
	}
	if children > 0 {
		return apperrors.Conflict("vm image %q has %d dependent snapshot(s)", name, children)
	}
	if err := os.Remove(img.Path); err != nil && !os.IsNotExist(err) {
		return apperrors.Internal("failed to remove vm image file", err)
	}
	return m.repo.DeleteByPK(ctx, name)
}

func (m *Manager) List(ctx context.Context, f *store.Filter) ([]models.VmImage, error) {
	return m.repo.ReadBy(ctx, f)
}
