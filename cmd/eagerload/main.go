package main

import (
	"fmt"
	"os"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"eagerload/internal/cli"
)

func main() {
	godotenv.Load()

	// CLI DISPATCHER
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "load":
			cli.HandleLoad(os.Args[2:])
			return
		case "check":
			cli.HandleCheck(os.Args[2:])
			return
		case "serve":
			cli.HandleServe(os.Args[2:])
			return
		case "version":
			cli.HandleVersion()
			return
		default:
			fmt.Printf("Unknown command %q\n\n", os.Args[1])
			fmt.Println("Usage: eagerload [serve|load|check|version]")
			os.Exit(1)
		}
	}

	cli.HandleServe(nil)
}
