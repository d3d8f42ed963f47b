package auth

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Structs

// FileAuthenticator contains file based authentication
// information including the in-memory list of username to
// password mappings.
type FileAuthenticator struct {
	Users []User
}

// User holds name and password from one line from users file.
type User struct {
	Name     string
	Password string
}

// Functions

// NewFileAuthenticator takes in a file name and a separator,
// reads in specified file and parses it line by line as
// username - password elements separated by the separator.
// At the end, the returned struct contains an in-memory list
// of users sorted by name.
func NewFileAuthenticator(file string, sep string) (*FileAuthenticator, error) {

	// Reserve space for the ordered users list in memory.
	users := make([]User, 0, 50)

	// Open file with authentication information.
	handle, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("[auth.NewFileAuthenticator] Could not open supplied authentication file: %v", err)
	}
	defer handle.Close()

	// Create a new scanner on top of file handle.
	scanner := bufio.NewScanner(handle)

	// As long as there are lines left, scan them into memory.
	for scanner.Scan() {

		if scanner.Text() == "" {
			continue
		}

		// Split read line based on separator defined in config file.
		userData := strings.SplitN(scanner.Text(), sep, 2)
		if len(userData) != 2 {
			return nil, fmt.Errorf("[auth.NewFileAuthenticator] Malformed line in authentication file: '%s'", scanner.Text())
		}

		// Append new user element to slice.
		users = append(users, User{
			Name:     userData[0],
			Password: userData[1],
		})
	}

	// If the scanner ended with an error, report it.
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("[auth.NewFileAuthenticator] Experienced error while scanning authentication file: %v", err)
	}

	// Sort users list to search it efficiently later on.
	sort.Slice(users, func(i, j int) bool {
		return users[i].Name < users[j].Name
	})

	return &FileAuthenticator{
		Users: users,
	}, nil
}

// AuthenticatePlain performs the actual authentication
// process by taking supplied credentials and attempting
// to find a matching entry the in-memory list taken from
// the authentication file.
func (f *FileAuthenticator) AuthenticatePlain(username string, password string, clientAddr string) error {

	// Search in user list for user matching supplied name.
	i := sort.Search(len(f.Users), func(i int) bool {
		return f.Users[i].Name >= username
	})

	// If that user does not exist, throw an error.
	if !((i < len(f.Users)) && (f.Users[i].Name == username)) {
		return fmt.Errorf("username not found in list of users")
	}

	// Check if passwords match.
	if f.Users[i].Password != password {
		return fmt.Errorf("passwords did not match")
	}

	return nil
}

// UserNames returns the sorted names of all known users, as
// needed to prepare their maildirs at startup.
func (f *FileAuthenticator) UserNames() []string {

	names := make([]string, len(f.Users))
	for i, user := range f.Users {
		names[i] = user.Name
	}

	return names
}
