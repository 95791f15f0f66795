// Package testutil 测试用的内存数据库、Redis 和数据构造函数
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"incentive/internal/model"
	"incentive/pkg/idgen"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 每个测试独立的内存 sqlite
//
// 只保留一个连接：sqlite 没有行锁，单连接让事务串行执行，
// 并发测试里的竞争在这里等价于 MySQL 上的行锁排队
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

// NewRedis 基于 miniredis 的客户端
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func CreateUser(t *testing.T, db *gorm.DB, name string, referrerID *int64) *model.User {
	t.Helper()

	user := &model.User{
		Name:       name,
		Email:      fmt.Sprintf("%s@example.com", strings.ToLower(name)),
		ReferrerID: referrerID,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// SeedPoints 通过一条 earn 流水给用户初始积分，保持对账平衡
func SeedPoints(t *testing.T, db *gorm.DB, userID int64, points int64) {
	t.Helper()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"total_points":                gorm.Expr("total_points + ?", points),
			"accomplishment_total_points": gorm.Expr("accomplishment_total_points + ?", points),
			"lifetime_total_points":       gorm.Expr("lifetime_total_points + ?", points),
		}).Error; err != nil {
			return err
		}
		return tx.Create(&model.PointTransaction{
			TransactionNo:   idgen.GenerateTransactionNo(),
			UserID:          userID,
			Points:          points,
			TransactionType: model.TransactionTypeEarn,
			Cumulative:      true,
			Description:     "初始积分",
			BalanceAfter:    points,
		}).Error
	}))
}

func CreateProduct(t *testing.T, db *gorm.DB, name string, pointsRequired, stock int64) *model.Product {
	t.Helper()

	product := &model.Product{Name: name, PointsRequired: pointsRequired, StockQuantity: stock, Active: true}
	require.NoError(t, db.Create(product).Error)
	return product
}

func CreateProject(t *testing.T, db *gorm.DB) *model.Project {
	t.Helper()

	project := &model.Project{Name: "Project " + t.Name()}
	require.NoError(t, db.Create(project).Error)
	return project
}

// CreateFormType id 显式指定，以便和奖励表对应
func CreateFormType(t *testing.T, db *gorm.DB, id int64, pointReward int64, requiredFields string) *model.FormType {
	t.Helper()

	formType := &model.FormType{ID: id, Name: fmt.Sprintf("type-%d", id), PointReward: pointReward}
	if requiredFields != "" {
		formType.RequiredFields = []byte(requiredFields)
	}
	require.NoError(t, db.Create(formType).Error)
	return formType
}

// CreateSubmittedForm 直接插入一份待审核表单
func CreateSubmittedForm(t *testing.T, db *gorm.DB, userID, projectID, formTypeID int64, special bool) *model.Form {
	t.Helper()

	form := &model.Form{
		UserID:           userID,
		ProjectID:        projectID,
		FormTypeID:       formTypeID,
		Status:           model.FormStatusSubmitted,
		IsSpecialEdition: special,
	}
	require.NoError(t, db.Create(form).Error)
	return form
}

// Points 重新读取用户积分计数器
func Points(t *testing.T, db *gorm.DB, userID int64) *model.User {
	t.Helper()

	var user model.User
	require.NoError(t, db.First(&user, userID).Error)
	return &user
}

func Stock(t *testing.T, db *gorm.DB, productID int64) int64 {
	t.Helper()

	var product model.Product
	require.NoError(t, db.First(&product, productID).Error)
	return product.StockQuantity
}
