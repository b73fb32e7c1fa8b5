// Package session persists per-browser display preferences in a cookie.
package session

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/sessions"

	"github.com/dense-analysis/networth/internal/model"
)

var preferenceStore *sessions.CookieStore

const sessionName = "networthprefs"
const currencyKey = "displayCurrency"

// InitSessionStorage starts up session storage or crashes the program with an error
func InitSessionStorage() {
	secretKey := os.Getenv("SECRET_KEY")

	if len(secretKey) == 0 {
		fmt.Fprintf(os.Stderr, "No SECRET_KEY variable set!\n")
		os.Exit(1)
	}

	preferenceStore = sessions.NewCookieStore([]byte(secretKey))
}

// DisplayCurrency reads the visitor's saved display currency.
func DisplayCurrency(request *http.Request) (model.Currency, bool) {
	session, err := preferenceStore.Get(request, sessionName)

	if err != nil {
		return model.USD, false
	}

	if value, ok := session.Values[currencyKey].(string); ok {
		if currency, parseErr := model.ParseCurrency(value); parseErr == nil {
			return currency, true
		}
	}

	return model.USD, false
}

// SaveDisplayCurrency stores the visitor's display currency in the cookie.
func SaveDisplayCurrency(writer http.ResponseWriter, request *http.Request, currency model.Currency) error {
	session, _ := preferenceStore.Get(request, sessionName)
	session.Values[currencyKey] = string(currency)

	return session.Save(request, writer)
}
