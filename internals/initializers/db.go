package initializers

import (
	"fmt"

	"passkey-auth/internals/config"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func ConnectToDb() {
	var err error
	dsn := config.GetEnvAsStr("DB_URL", "auth.db")
	fmt.Println("Connecting to database at:", dsn)

	// TranslateError turns driver unique-constraint failures into
	// gorm.ErrDuplicatedKey so the store can map them to conflicts.
	DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		panic("Failed to connect to DB")
	}
}
