// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db    *gorm.DB
	limit int
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string, limit int) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
	return OpenGorm(postgres.Open(dsn), limit)
}

// OpenGorm wraps any GORM dialector. The snapshot columns are jsonb, so the
// dialect must be PostgreSQL in production.
func OpenGorm(dialector gorm.Dialector, limit int) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormRoom{}, &models.GormGameRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db, limit: historyLimit(limit)}, nil
}

// SaveSnapshot 在一个事务里整表替换
func (p *GormPostgreSQL) SaveSnapshot(ctx context.Context, rooms []*models.Room) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("1 = 1").Delete(&models.GormRoom{}).Error; err != nil {
			return err
		}
		if len(rooms) == 0 {
			return nil
		}
		rows := make([]models.GormRoom, 0, len(rooms))
		for _, r := range rooms {
			rows = append(rows, models.GormRoom{
				RoomID: r.ID,
				Phase:  string(r.GameState.Phase),
				Data:   *r,
			})
		}
		return tx.Create(&rows).Error
	})
}

func (p *GormPostgreSQL) LoadSnapshot(ctx context.Context) ([]*models.Room, error) {
	var rows []models.GormRoom
	if err := p.db.WithContext(ctx).Order("room_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	rooms := make([]*models.Room, 0, len(rows))
	for i := range rows {
		r := rows[i].Data
		rooms = append(rooms, &r)
	}
	return rooms, nil
}

// SaveHistoryEntry 追加对局记录并裁剪
func (p *GormPostgreSQL) SaveHistoryEntry(ctx context.Context, entry models.HistoryEntry) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.GormGameRecord{
			RoomID: entry.RoomID,
			Winner: string(entry.Winner),
			Entry:  entry,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		keep := tx.Model(&models.GormGameRecord{}).Select("id").Order("id desc").Limit(p.limit)
		return tx.Unscoped().Where("id NOT IN (?)", keep).Delete(&models.GormGameRecord{}).Error
	})
}

func (p *GormPostgreSQL) LoadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	var rows []models.GormGameRecord
	if err := p.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]models.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.Entry)
	}
	return entries, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CountByWinner 按胜利阵营统计对局数
func (p *GormPostgreSQL) CountByWinner(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Winner string
		Total  int64
	}
	err := p.db.WithContext(ctx).Model(&models.GormGameRecord{}).
		Select("winner, COUNT(*) AS total").
		Group("winner").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Winner] = r.Total
	}
	return counts, nil
}
