package main

import (
	"passkey-auth/internals/initializers"
	"passkey-auth/internals/routes"
	"passkey-auth/internals/store"
)

func init() {
	initializers.LoadEnvVariables()
	initializers.ConnectToDb()
	initializers.SyncDatabase()
	initializers.StartCleanup(store.NewGormStore(initializers.DB))
}

func main() {
	r := routes.SetupRouter(initializers.DB)
	r.Run()
}
