package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"roof-crm/internal/config"
	"roof-crm/internal/database"
	"roof-crm/internal/features/crm"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type demoContact struct {
	Key  string
	Data map[string]interface{}
}

type demoProject struct {
	Name       string
	ContactKey string
	Data       map[string]interface{}
}

var demoContacts = []demoContact{
	{"dana@example.com", map[string]interface{}{
		"first_name": "Dana", "last_name": "Reyes", "email": "dana@example.com",
		"phone": "555-0101", "address_street": "12 Oak St", "address_city": "Springfield",
		"address_state": "IL", "address_zip": "62701",
	}},
	{"ops@obrienroofing.example", map[string]interface{}{
		"company": "O'Brien Roofing", "email": "ops@obrienroofing.example", "phone": "555-0102",
	}},
	{"lee@example.com", map[string]interface{}{
		"first_name": "Lee", "last_name": "Park", "email": "lee@example.com",
	}},
}

var demoProjects = []demoProject{
	{"Oak St Reroof", "dana@example.com", map[string]interface{}{
		"description":     "Tear off and replace architectural shingles",
		"estimated_value": 900.0, "approved_value": 1200.0,
	}},
	{"Gutter Replacement", "lee@example.com", map[string]interface{}{
		"estimated_value": 450.0,
	}},
}

func main() {
	tenantID := flag.String("tenant", "000000000000000000000001", "tenant id to seed")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect(context.Background())

	repo := crm.NewRecordRepository(&database.MongodbDB{DB: client.Database(cfg.DBName)})
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Printf("Failed to ensure record indexes: %v", err)
	}

	fmt.Println("Seeding demo contacts and projects...")

	contactIDs := make(map[string]string)
	for _, c := range demoContacts {
		id, created, err := repo.EnsureRecord(ctx, *tenantID, crm.EntityContacts, "email", c.Data)
		if err != nil {
			log.Fatalf("Failed to seed contact %s: %v", c.Key, err)
		}
		contactIDs[c.Key] = id
		report("contact", c.Key, id, created)
	}

	for _, p := range demoProjects {
		data := map[string]interface{}{"name": p.Name, "contact_id": contactIDs[p.ContactKey]}
		for k, v := range p.Data {
			data[k] = v
		}
		id, created, err := repo.EnsureRecord(ctx, *tenantID, crm.EntityProjects, "name", data)
		if err != nil {
			log.Fatalf("Failed to seed project %s: %v", p.Name, err)
		}
		report("project", p.Name, id, created)
	}

	fmt.Println("Demo data ready.")
}

func report(kind, key, id string, created bool) {
	if created {
		fmt.Printf("Created %s %s (%s)\n", kind, key, id)
		return
	}
	fmt.Printf("%s %s already exists (%s)\n", kind, key, id)
}
