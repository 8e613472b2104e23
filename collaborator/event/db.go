package event

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// NewDB opens a fresh GORM MySQL connection for a NewGormEventSink to wrap.
// Construct it once at process startup; nothing in this package holds onto
// it itself.
func NewDB(dsn string, opts ...gorm.Option) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), opts...)
}
