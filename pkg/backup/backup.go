package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/alinorwa/nurse-assistant-management/pkg/errors"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/scheduler"
	stores "github.com/alinorwa/nurse-assistant-management/pkg/storage"
)

const (
	filePrefix  = "triage_backup_"
	timeLayout  = "20060102_150405"
	DefaultKeep = 7
)

// Config 备份配置，Store 非空时快照同时上传到对象存储
type Config struct {
	Driver string
	Dir    string
	Keep   int
	Store  stores.Store
}

type Backup struct {
	db  *gorm.DB
	cfg Config
	now func() time.Time
}

func New(db *gorm.DB, cfg Config) *Backup {
	if cfg.Keep <= 0 {
		cfg.Keep = DefaultKeep
	}
	return &Backup{db: db, cfg: cfg, now: time.Now}
}

// Run 执行一次备份，返回快照路径。
// SQLite 使用 VACUUM INTO，数据库在线时也能得到一致的快照。
// 敏感字段在库中本就是密文，快照不会再做一次加密。
func (b *Backup) Run(ctx context.Context) (string, error) {
	if !strings.EqualFold(b.cfg.Driver, "sqlite") {
		return "", apperrors.Errorf(apperrors.KindConfig, "backup: unsupported DB_DRIVER %q", b.cfg.Driver)
	}
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return "", apperrors.Wrap(err, apperrors.KindInternal, "backup: create directory")
	}

	dst := filepath.Join(b.cfg.Dir, fmt.Sprintf("%s%s.db", filePrefix, b.now().UTC().Format(timeLayout)))
	if err := b.db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return "", apperrors.Wrap(err, apperrors.KindInternal, "backup: vacuum into")
	}

	if b.cfg.Store != nil {
		if err := b.upload(ctx, dst); err != nil {
			return dst, err
		}
	}
	if err := b.prune(); err != nil {
		logger.Warn("backup prune failed", zap.Error(err))
	}
	return dst, nil
}

func (b *Backup) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "backup: open snapshot")
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindInternal, "backup: stat snapshot")
	}
	key := "backups/" + filepath.Base(path)
	if err := b.cfg.Store.Write(ctx, key, f, st.Size(), "application/vnd.sqlite3"); err != nil {
		return apperrors.Wrap(err, apperrors.KindTransient, "backup: upload snapshot")
	}
	return nil
}

// prune 只保留最近 Keep 份本地快照
func (b *Backup) prune() error {
	matches, err := filepath.Glob(filepath.Join(b.cfg.Dir, filePrefix+"*.db"))
	if err != nil {
		return err
	}
	if len(matches) <= b.cfg.Keep {
		return nil
	}
	// 文件名里的时间戳可直接按字典序排序
	sort.Strings(matches)
	for _, p := range matches[:len(matches)-b.cfg.Keep] {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Job 供 cron 调度
func (b *Backup) Job() scheduler.Job {
	return scheduler.FuncJob(func(ctx context.Context) {
		dst, err := b.Run(ctx)
		if err != nil {
			logger.Warn("backup failed", zap.Error(err))
			return
		}
		logger.Info("backup completed", zap.String("path", dst))
	})
}
