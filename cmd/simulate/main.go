// Command simulate seeds a small gastrointestinal outbreak and runs one
// surveillance pass against the configured database.
package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/alinorwa/nurse-assistant-management/internal/models"
	"github.com/alinorwa/nurse-assistant-management/internal/surveillance"
	"github.com/alinorwa/nurse-assistant-management/pkg/codec"
	"github.com/alinorwa/nurse-assistant-management/pkg/config"
	"github.com/alinorwa/nurse-assistant-management/pkg/logger"
	"github.com/alinorwa/nurse-assistant-management/pkg/util"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig
	if err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	db, err := util.OpenDatabase(cfg.DBDriver, cfg.DSN, false)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	c, err := codec.NewFromBase64(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("field codec: %v", err)
	}
	models.RegisterFieldCodec(c)
	if err := models.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	agg := surveillance.NewAggregator(db, surveillance.Config{
		Window:    cfg.Surveillance.Window,
		Threshold: cfg.Surveillance.Threshold,
	}, nil)
	out, err := surveillance.Simulate(ctx, db, agg)
	if err != nil {
		logger.Error("simulation failed", zap.Error(err))
		log.Fatalf("simulate: %v", err)
	}

	fmt.Println("🚀 Outbreak simulation")
	for _, sc := range out.Cases {
		fmt.Printf("  ✅ %-16s %-14s %s\n", sc.Username, sc.FullName, sc.Symptom)
	}

	rep := out.Report
	categories := make([]string, 0, len(rep.Affected))
	for k := range rep.Affected {
		categories = append(categories, k)
	}
	sort.Strings(categories)
	fmt.Printf("\nScanned %d messages since %s\n", rep.Scanned, rep.Since.In(cfg.Location()).Format("15:04"))
	for _, k := range categories {
		fmt.Printf("  %-18s %d patients\n", k, rep.Affected[k])
	}
	if len(rep.Raised) == 0 {
		fmt.Println("\nNo new alert (already raised in this window, or below threshold).")
		return
	}
	for _, a := range rep.Raised {
		fmt.Printf("\n🔥 ALERT: %s, %d cases\n", a.SymptomCategory, a.CaseCount)
	}
}
