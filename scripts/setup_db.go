package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"workspace-team-backend/pkg/database"
	"workspace-team-backend/pkg/models"
)

// 用法: go run ./scripts [dsn|sqlite-path] [--seed]
// 打开数据库会自动执行迁移；--seed 写入一个本地开发用的工作区与 owner
func main() {
	cfg := database.DatabaseConfig{
		Driver:      "postgres",
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
	}
	if cfg.PostgresDSN == "" {
		cfg.Driver = "sqlite"
		if cfg.SQLitePath == "" {
			cfg.SQLitePath = "./data/team.db"
		}
	}

	seed := false
	for _, arg := range os.Args[1:] {
		switch {
		case arg == "--seed":
			seed = true
		case strings.HasPrefix(arg, "postgres://") || strings.HasPrefix(arg, "postgresql://"):
			cfg.Driver = "postgres"
			cfg.PostgresDSN = arg
		default:
			cfg.Driver = "sqlite"
			cfg.SQLitePath = arg
		}
	}

	target := cfg.SQLitePath
	if cfg.Driver == "postgres" {
		target = maskPassword(cfg.PostgresDSN)
	}
	fmt.Printf("🔗 Connecting to %s database: %s\n", cfg.Driver, target)

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		log.Fatalf("❌ Health check failed: %v", err)
	}
	fmt.Println("✅ Migrations applied, database is healthy")

	if !seed {
		return
	}
	if err := seedDemo(ctx, db); err != nil {
		log.Fatalf("❌ Failed to seed demo data: %v", err)
	}
	fmt.Println("🎉 Demo workspace ready: id=demo-workspace owner=demo-owner (owner@demo.local)")
}

// seedDemo 幂等地写入演示数据
func seedDemo(ctx context.Context, db database.DatabaseInterface) error {
	return db.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := db.GetUserByID(ctx, "demo-owner"); errors.Is(err, database.ErrNotFound) {
			owner := &models.User{ID: "demo-owner", Email: "owner@demo.local", Name: "Demo Owner"}
			if err := db.CreateUser(ctx, owner); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if _, err := db.GetWorkspace(ctx, "demo-workspace"); errors.Is(err, database.ErrNotFound) {
			ws := &models.Workspace{ID: "demo-workspace", Name: "Demo", OwnerID: "demo-owner", MaxMembers: 5}
			if err := db.CreateWorkspace(ctx, ws); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if _, err := db.GetGroup(ctx, "demo-group"); errors.Is(err, database.ErrNotFound) {
			return db.CreateGroup(ctx, &models.Group{ID: "demo-group", WorkspaceID: "demo-workspace", Name: "General"})
		} else if err != nil {
			return err
		}
		return nil
	})
}

// maskPassword 隐藏连接字符串中的密码
func maskPassword(dsn string) string {
	if len(dsn) > 50 {
		return dsn[:20] + "***" + dsn[len(dsn)-20:]
	}
	if len(dsn) > 10 {
		return dsn[:10] + "***"
	}
	return "***"
}
