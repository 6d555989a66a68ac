// Command chatboard is a command line client for a chatboard server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatboard/clients/go/chatboard"
)

var (
	flagURL      string
	flagRoom     string
	flagPassword string
	flagName     string
	flagLimit    int
	flagBefore   string
	flagAfter    string
	flagImage    string
	flagAttach   string
	flagVerbose  bool

	flagSearchRoom  string
	flagSearchLimit int

	client *chatboard.Client
)

var rootCmd = &cobra.Command{
	Use:           "chatboard",
	Short:         "Command line client for a chatboard server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		client = chatboard.NewClient(flagURL)
		log.Debug().Str("url", client.BaseURL).Str("config", client.ConfigDir).Msg("client ready")
	},
}

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	defaultURL := os.Getenv("CHATBOARD_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", defaultURL, "server base URL (env CHATBOARD_URL)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	registerCmd.Flags().StringVar(&flagPassword, "password", "", "password (prompted when empty)")
	registerCmd.Flags().StringVar(&flagName, "name", "", "display name")
	loginCmd.Flags().StringVar(&flagPassword, "password", "", "password (prompted when empty)")

	for _, c := range []*cobra.Command{readCmd, postCmd, forwardCmd, repliesCmd, replyCmd, watchCmd} {
		c.Flags().StringVarP(&flagRoom, "room", "r", chatboard.Lobby, "room as category/name")
	}
	readCmd.Flags().IntVarP(&flagLimit, "limit", "n", 40, "messages per page")
	readCmd.Flags().StringVar(&flagBefore, "before", "", "page older than this message id")
	readCmd.Flags().StringVar(&flagAfter, "after", "", "page newer than this message id")
	repliesCmd.Flags().IntVarP(&flagLimit, "limit", "n", 40, "replies per page")
	repliesCmd.Flags().StringVar(&flagAfter, "after", "", "replies newer than this reply id")
	postCmd.Flags().StringVar(&flagImage, "image", "", "image file to send inline")
	postCmd.Flags().StringVar(&flagAttach, "attach", "", "image file to upload and attach")
	searchCmd.Flags().IntVarP(&flagSearchLimit, "limit", "n", 20, "max results")
	searchCmd.Flags().StringVarP(&flagSearchRoom, "room", "r", "", "only search this room")

	rootCmd.AddCommand(
		healthCmd, statsCmd,
		registerCmd, loginCmd, logoutCmd, verifyCmd, resendCmd, meCmd, nameCmd, profileCmd,
		roomsCmd, createRoomCmd, readCmd, postCmd, uploadCmd, forwardCmd,
		repliesCmd, replyCmd, searchCmd, watchCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.Health(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show board statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create an account; a verification link is emailed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFor(flagPassword)
		if err != nil {
			return err
		}
		resp, err := client.Register(cmd.Context(), args[0], password, flagName)
		if err != nil {
			return err
		}
		fmt.Printf("Registered as: %s\n", resp.ID)
		fmt.Println("Check your inbox for the verification link, then run: chatboard verify <link>")
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in and store the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFor(flagPassword)
		if err != nil {
			return err
		}
		resp, err := client.Login(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (session until %s)\n", args[0], resp.ExpiresAt)
		if !resp.EmailVerified {
			fmt.Println("Email not verified yet: reading works, posting does not.")
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <link-or-token>",
	Short: "Confirm your email address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.Verify(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Email verified")
		return nil
	},
}

var resendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Send a new verification link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.ResendVerification(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Verification link sent")
		return nil
	},
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.Me(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var nameCmd = &cobra.Command{
	Use:   "name <display name>",
	Short: "Set your display name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.SetDisplayName(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Printf("Display name: %s\n", resp.DisplayName)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <user id>",
	Short: "Show a user's public profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.GetProfile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.ListRooms(cmd.Context(), 100, 0)
		if err != nil {
			return err
		}
		for _, rm := range resp.Rooms {
			fmt.Printf("  %-30s %6d msgs  %s\n", rm.Room, rm.MessageCount, rm.LastActive)
		}
		return nil
	},
}

var createRoomCmd = &cobra.Command{
	Use:   "create-room <category/name>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.CreateRoom(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created: %s\n", resp.Room)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read a page of messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.GetMessages(cmd.Context(), flagRoom, flagLimit, flagBefore, flagAfter)
		if err != nil {
			return err
		}
		for _, msg := range resp.Messages {
			printMessage(msg)
		}
		if resp.HasMore && resp.Oldest != "" {
			fmt.Printf("-- older: chatboard read -r %s --before %s\n", flagRoom, resp.Oldest)
		}
		return nil
	},
}

var postCmd = &cobra.Command{
	Use:   "post [message]",
	Short: "Post a message, optionally with an image",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := chatboard.PostMessageRequest{Text: strings.Join(args, " ")}

		switch {
		case flagImage != "" && flagAttach != "":
			return fmt.Errorf("use either --image or --attach")
		case flagImage != "":
			data, err := os.ReadFile(flagImage)
			if err != nil {
				return err
			}
			req.Image = dataURL(flagImage, data)
		case flagAttach != "":
			att, err := upload(cmd.Context(), flagAttach)
			if err != nil {
				return err
			}
			req.AttachmentID = att.ID
		}

		resp, err := client.PostMessage(cmd.Context(), flagRoom, req)
		if err != nil {
			return err
		}
		fmt.Printf("Posted: %s\n", resp.ID)
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an image attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		att, err := upload(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(att)
	},
}

var forwardCmd = &cobra.Command{
	Use:   "forward <message id> <target category/name>",
	Short: "Forward a message to another room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.Forward(cmd.Context(), flagRoom, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Forwarded: %s -> %s (%s)\n", args[0], resp.Room, resp.ID)
		return nil
	},
}

var repliesCmd = &cobra.Command{
	Use:   "replies <message id>",
	Short: "Show a message and its replies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.GetThread(cmd.Context(), flagRoom, args[0], flagLimit, flagAfter)
		if err != nil {
			return err
		}
		printMessage(*resp.Parent)
		for _, r := range resp.Replies {
			fmt.Printf("    ↳ [%s] %s: %s\n", formatTS(r.Timestamp), r.User, r.Text)
		}
		return nil
	},
}

var replyCmd = &cobra.Command{
	Use:   "reply <message id> <text>",
	Short: "Reply to a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.PostReply(cmd.Context(), flagRoom, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Printf("Replied: %s\n", resp.ID)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.Search(cmd.Context(), strings.Join(args, " "), flagSearchLimit, flagSearchRoom, 0)
		if err != nil {
			return err
		}
		for _, r := range resp.Results {
			fmt.Printf("[%s] %s %s: %s\n", r.Room, formatTS(r.Timestamp), r.User, r.Text)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream new messages and replies until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Str("room", flagRoom).Msg("watching")
		return client.Watch(cmd.Context(), flagRoom, func(ev chatboard.Event) {
			switch {
			case ev.Message != nil:
				printMessage(*ev.Message)
			case ev.Reply != nil:
				fmt.Printf("    ↳ %s [%s] %s: %s\n", ev.Reply.ParentID, formatTS(ev.Reply.Timestamp), ev.Reply.User, ev.Reply.Text)
			}
		})
	},
}

func upload(ctx context.Context, path string) (*chatboard.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return client.UploadAttachment(ctx, data, mime.TypeByExtension(filepath.Ext(path)))
}

func dataURL(path string, data []byte) string {
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return chatboard.DataURL(ct, data)
}

func passwordFor(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("CHATBOARD_PASSWORD"); env != "" {
		return env, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printMessage(msg chatboard.Message) {
	body := msg.Text
	if msg.Image != "" || msg.AttachmentID != "" {
		body += " [image]"
	}
	if msg.ForwardedFromRoom != "" {
		body = fmt.Sprintf("(fwd from %s/%s) %s", msg.ForwardedCategory, msg.ForwardedFromRoom, body)
	}
	if msg.ReplyCount > 0 {
		body += fmt.Sprintf(" (%d replies)", msg.ReplyCount)
	}
	fmt.Printf("[%s] %s %s: %s\n", formatTS(msg.Timestamp), msg.ID, msg.User, body)
}

func formatTS(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
