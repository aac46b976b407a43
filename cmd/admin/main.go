package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"textnovel/internal/config"
	"textnovel/internal/database"
	"textnovel/internal/novel"
	"textnovel/internal/repository"
)

func main() {
	var (
		command = flag.String("command", "", "要执行的操作：migrate | drop | seed（必填）")
		dbHost  = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort  = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName  = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser  = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass  = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	cmd := strings.ToLower(strings.TrimSpace(*command))
	if cmd != "migrate" && cmd != "drop" && cmd != "seed" {
		log.Fatal("usage: admin --command=migrate|drop|seed")
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg, os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	switch cmd {
	case "migrate":
		if err := database.Migrate(db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		fmt.Println("数据表已创建/更新。")
	case "drop":
		if err := database.DropAll(db); err != nil {
			log.Fatalf("drop tables: %v", err)
		}
		fmt.Println("数据表已删除。")
	case "seed":
		if err := database.Migrate(db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		event, err := seedSampleEvent(context.Background(), repository.NewGormRepository(db))
		if err != nil {
			log.Fatalf("seed sample event: %v", err)
		}
		fmt.Printf("已创建示例事件：%s（%s），共 %d 行文本。\n", event.Title, event.ID, len(event.Texts))
	}
}

// seedSampleEvent 写入一个带角色、HUD 和三行文本的示例事件，便于本地联调编辑器。
func seedSampleEvent(ctx context.Context, store repository.Store) (novel.Event, error) {
	event, err := store.CreateEvent(ctx, "Chapter 1", ptr("示例事件"))
	if err != nil {
		return novel.Event{}, err
	}

	characters := []novel.CharacterDraft{
		{Name: "Aoi", Position: novel.PositionLeft},
		{Name: "Ren", Position: novel.PositionRight},
	}
	event, err = store.UpdateEvent(ctx, event.ID, novel.EventPatch{
		HeaderSettings: &novel.HeaderSettings{
			Year:    1,
			Month:   4,
			Week:    1,
			DayType: novel.DayTypeWeekday,
			Stats: novel.Stats{
				Motivation: novel.Gauge{Value: 60, Max: 100},
				Stamina:    novel.Gauge{Value: 80, Max: 100},
				Toughness:  novel.Gauge{Value: 20, Max: 100},
			},
		},
		Characters: &characters,
	})
	if err != nil {
		return novel.Event{}, err
	}

	lines := []struct {
		content string
		speaker *string
	}{
		{content: "春の朝。"},
		{content: "おはよう！", speaker: &event.Characters[0].ID},
		{content: "……おはよう。", speaker: &event.Characters[1].ID},
	}
	for _, line := range lines {
		if _, err := store.CreateText(ctx, novel.NewText{EventID: event.ID, Content: line.content, CharacterID: line.speaker}); err != nil {
			return novel.Event{}, err
		}
	}
	return store.GetEvent(ctx, event.ID)
}

func ptr[T any](v T) *T { return &v }

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:         host,
		Port:         port,
		Name:         name,
		User:         user,
		Password:     password,
		SSLMode:      sslmode,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	}, nil
}
