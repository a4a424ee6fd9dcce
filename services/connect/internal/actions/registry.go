// Package actions is the command bar: a searchable list of places and
// functions, filtered by who is asking.
package actions

import (
	"fmt"
	"strings"

	"github.com/ruet-connect/connect/services/connect/pkg/models"
)

// ActionType categorizes what an action does when executed.
type ActionType string

const (
	TypeNavigation ActionType = "navigation"
	TypeFunction   ActionType = "function"
)

// Visibility controls when an action appears based on auth state.
type Visibility int

const (
	VisibleAlways    Visibility = iota // Everyone sees it
	VisibleLoggedOut                   // Only when not logged in
	VisibleLoggedIn                    // Only when logged in
	VisibleAdmin                       // Only admins
)

// Action is one entry in the command bar.
type Action struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	// For navigation actions: the client route.
	// For function actions: a client-side function identifier.
	Target   string   `json:"target"`
	Keywords []string `json:"keywords"`
	// Badge is a count shown next to the title, such as pending requests.
	Badge      int        `json:"badge,omitempty"`
	Visibility Visibility `json:"-"`
}

// SearchContext is the caller's session state.
type SearchContext struct {
	LoggedIn        bool
	IsAdmin         bool
	PendingRequests int
}

// Registry holds all available actions and supports filtered search.
type Registry struct {
	actions []Action
}

// New creates a Registry with the marketplace actions.
func New() *Registry {
	return &Registry{
		actions: defaultActions(),
	}
}

// Search returns actions matching the query that are visible given the context.
// An empty query returns all visible actions. Matching is case-insensitive substring.
func (r *Registry) Search(query string, ctx SearchContext) []Action {
	q := strings.ToLower(strings.TrimSpace(query))
	var results []Action

	for _, a := range r.actions {
		if !isVisible(a, ctx) {
			continue
		}
		if q == "" || matchesQuery(a, q) {
			if a.ID == "nav-requests-received" {
				a.Badge = ctx.PendingRequests
			}
			results = append(results, a)
		}
	}
	return results
}

func isVisible(a Action, ctx SearchContext) bool {
	switch a.Visibility {
	case VisibleAlways:
		return true
	case VisibleLoggedOut:
		return !ctx.LoggedIn
	case VisibleLoggedIn:
		return ctx.LoggedIn
	case VisibleAdmin:
		return ctx.LoggedIn && ctx.IsAdmin
	default:
		return true
	}
}

func matchesQuery(a Action, q string) bool {
	if strings.Contains(strings.ToLower(a.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(a.Description), q) {
		return true
	}
	for _, kw := range a.Keywords {
		if strings.Contains(strings.ToLower(kw), q) {
			return true
		}
	}
	return false
}

var categoryKeywords = map[models.Category][]string{
	models.CategoryLost:   {"lost", "missing", "misplaced"},
	models.CategoryFound:  {"found", "picked up", "return"},
	models.CategoryLend:   {"lend", "borrow", "loan"},
	models.CategoryDonate: {"donate", "free", "giveaway"},
}

// defaultActions returns the built-in set of actions.
func defaultActions() []Action {
	actions := []Action{
		{
			ID:          "nav-home",
			Type:        TypeNavigation,
			Title:       "Home",
			Description: "Browse every recent posting",
			Target:      "/",
			Keywords:    []string{"home", "browse", "items", "marketplace", "start"},
			Visibility:  VisibleAlways,
		},
	}

	for _, c := range models.Categories {
		slug := strings.ToLower(string(c))
		actions = append(actions, Action{
			ID:          "nav-category-" + slug,
			Type:        TypeNavigation,
			Title:       string(c),
			Description: fmt.Sprintf("Browse %s items", slug),
			Target:      "/items?category=" + string(c),
			Keywords:    append([]string{"category"}, categoryKeywords[c]...),
			Visibility:  VisibleAlways,
		})
	}

	return append(actions,
		// Auth pages, only when logged out
		Action{
			ID:          "nav-login",
			Type:        TypeNavigation,
			Title:       "Login",
			Description: "Sign in with your student id or email",
			Target:      "/login",
			Keywords:    []string{"login", "sign in", "signin", "account", "student id"},
			Visibility:  VisibleLoggedOut,
		},
		Action{
			ID:          "nav-signup",
			Type:        TypeNavigation,
			Title:       "Sign Up",
			Description: "Create an account with your RUET email",
			Target:      "/signup",
			Keywords:    []string{"signup", "sign up", "register", "create account", "new account"},
			Visibility:  VisibleLoggedOut,
		},
		Action{
			ID:          "fn-password-reset",
			Type:        TypeFunction,
			Title:       "Reset Password",
			Description: "Email yourself a password reset link",
			Target:      "password-reset",
			Keywords:    []string{"password", "forgot", "reset"},
			Visibility:  VisibleLoggedOut,
		},

		// Logged-in navigation
		Action{
			ID:          "nav-post-item",
			Type:        TypeNavigation,
			Title:       "Post Item",
			Description: "Post something lost, found, to lend or to donate",
			Target:      "/items/new",
			Keywords:    []string{"post", "new", "create", "add", "upload"},
			Visibility:  VisibleLoggedIn,
		},
		Action{
			ID:          "nav-my-items",
			Type:        TypeNavigation,
			Title:       "My Items",
			Description: "Items you have posted",
			Target:      "/me/items",
			Keywords:    []string{"mine", "my items", "posted", "listings"},
			Visibility:  VisibleLoggedIn,
		},
		Action{
			ID:          "nav-requests-received",
			Type:        TypeNavigation,
			Title:       "Requests Received",
			Description: "Approve or reject requests for your items",
			Target:      "/me/requests/received",
			Keywords:    []string{"requests", "received", "approve", "reject", "pending", "claims"},
			Visibility:  VisibleLoggedIn,
		},
		Action{
			ID:          "nav-requests-sent",
			Type:        TypeNavigation,
			Title:       "Requests Sent",
			Description: "Track the requests you have made",
			Target:      "/me/requests/sent",
			Keywords:    []string{"requests", "sent", "status", "claims"},
			Visibility:  VisibleLoggedIn,
		},
		Action{
			ID:          "nav-profile",
			Type:        TypeNavigation,
			Title:       "Profile",
			Description: "Edit your contact number or delete your account",
			Target:      "/me",
			Keywords:    []string{"profile", "account", "contact", "phone", "settings", "delete"},
			Visibility:  VisibleLoggedIn,
		},

		// Admin navigation
		Action{
			ID:          "nav-admin-items",
			Type:        TypeNavigation,
			Title:       "Moderate Items",
			Description: "Admin view of every posting",
			Target:      "/admin/items",
			Keywords:    []string{"admin", "moderate", "remove", "items"},
			Visibility:  VisibleAdmin,
		},

		// Function actions, logged in only
		Action{
			ID:          "fn-logout",
			Type:        TypeFunction,
			Title:       "Logout",
			Description: "Sign out of your account",
			Target:      "logout",
			Keywords:    []string{"logout", "log out", "sign out", "signout", "exit"},
			Visibility:  VisibleLoggedIn,
		},
	)
}
