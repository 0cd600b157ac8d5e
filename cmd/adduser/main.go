// Command adduser creates an account directly in the database, typically the
// first administrator.
//
//	adduser -email admin@school.test -name Admin -role admin -password '...'
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/users"
)

func main() {
	var in users.RegisterInput
	var class string
	flag.StringVar(&in.Email, "email", "", "login email (required)")
	flag.StringVar(&in.Name, "name", "", "display name (required)")
	flag.StringVar(&in.Password, "password", os.Getenv("ADDUSER_PASSWORD"), "password, or $ADDUSER_PASSWORD")
	flag.StringVar(&in.Role, "role", "admin", "admin or student")
	flag.StringVar(&class, "class", "", "class name for students")
	flag.Parse()
	if class != "" {
		in.ClassName = &class
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DBDriver == "memory" {
		fmt.Fprintln(os.Stderr, "adduser needs DB_DRIVER=sqlite or postgres")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(1)
	}
	defer dbh.Close()

	u, err := users.NewService(users.NewSQLStore(dbh)).Create(ctx, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("User created successfully: %s (%s, %s)\n", u.Name, u.Email, u.Role)
}
