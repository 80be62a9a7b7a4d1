// Command mock serves a local order form shaped like the real target pages,
// for manual runs of the submission flow.
package main

import (
	"encoding/json"
	"flag"
	"html/template"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

var formPage = template.Must(template.New("form").Parse(`<!doctype html>
<html lang="uk">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<form id="order" method="post" action="/order">
  <label>Ім'я та прізвище <input id="full-name" name="name" type="text"></label>
  <label>Телефон <input id="phone" name="phone" type="tel"></label>
  <label>Кількість
    <select id="qty" name="qty">
      {{range .Quantities}}<option value="{{.}}">{{.}} шт.</option>{{end}}
    </select>
  </label>
  <button type="submit">Оформити замовлення</button>
</form>
</body>
</html>`))

type order struct {
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	Quantity string    `json:"qty"`
	At       time.Time `json:"at"`
}

type orderLog struct {
	mu     sync.Mutex
	orders []order
}

func (l *orderLog) add(o order) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = append(l.orders, o)
	return len(l.orders)
}

func (l *orderLog) list() []order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]order(nil), l.orders...)
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	failRate := flag.Float64("fail-rate", 0, "share of order posts answered with 503")
	delay := flag.Duration("delay", 0, "delay before the form page is served")
	flag.Parse()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rngMu sync.Mutex
	orders := &orderLog{}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		if *delay > 0 {
			time.Sleep(*delay)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = formPage.Execute(w, map[string]any{
			"Title":      "Тестовий товар",
			"Quantities": []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		})
	})

	r.Post("/order", func(w http.ResponseWriter, req *http.Request) {
		rngMu.Lock()
		fail := rng.Float64() < *failRate
		rngMu.Unlock()
		if fail {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := req.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		o := order{
			Name:     req.PostForm.Get("name"),
			Phone:    req.PostForm.Get("phone"),
			Quantity: req.PostForm.Get("qty"),
			At:       time.Now(),
		}
		if o.Name == "" || o.Phone == "" {
			http.Error(w, "name and phone are required", http.StatusBadRequest)
			return
		}
		n := orders.add(o)
		log.Printf("order #%d: %s %s qty=%s", n, o.Name, o.Phone, o.Quantity)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>Дякуємо за замовлення!</h1>"))
	})

	r.Get("/mock/orders", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": orders.list()})
	})

	log.Printf("mock order form listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, r))
}
