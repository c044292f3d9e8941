package mysql

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	pkgmysql "github.com/JoeShih716/go-mem-fund/pkg/mysql"
)

// openTestClient 直接用 DSN 開連線 (測試用)
func openTestClient(dsn string) (*pkgmysql.Client, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	return pkgmysql.NewFromDB(db), nil
}
