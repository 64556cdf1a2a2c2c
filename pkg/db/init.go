package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func InitialiseDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %s", err.Error())
	}

	db.AutoMigrate(&Teacher{}, &Student{}, &Classroom{}, &ClassroomMembership{}, &ClassroomSession{}, &AttendanceEntry{})
	return db, nil
}
