package main

import (
	"bufio"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
	"github.com/marcodd23/go-dal-core/pkg/secretx"
)

type encryptOptions struct {
	keyRef     string
	store      string
	passphrase string
	decrypt    bool
}

type encryptResult struct {
	CipherText    string `json:"cipherText,omitempty"`
	PlainText     string `json:"plainText,omitempty"`
	EncryptionKey string `json:"encryptionKey"`
}

func newEncryptCmd() *cobra.Command {
	var o encryptOptions

	cmd := &cobra.Command{
		Use:   "encrypt [text]",
		Short: "Encrypt a connection string or password for the specification registry",
		Long: `encrypt seals the text (or the first line of stdin) with the passphrase referenced by
--key, printing the cipher text and the key reference to set as isEncrypted/encryptionKey in
the registry. Key references are keyring:<service>/<user>, env:<NAME> or a literal passphrase.
With --store the passphrase is first saved in the OS keyring under <service>/<user>.`,
		Example: `  dalctl encrypt --key env:DAL_KEY "server=db;user id=app;password=secret"
  dalctl encrypt --store go-dal-core/sales --passphrase "$PASS" < conn.txt
  dalctl encrypt --decrypt --key keyring:go-dal-core/sales "AQ3x..."`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			res, err := runEncrypt(secretx.New(secretx.DefaultKeyResolver()), text, o)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&o.keyRef, "key", "k", "", "key reference: keyring:<service>/<user>, env:<NAME> or a literal")
	fs.StringVar(&o.store, "store", "", "save --passphrase in the OS keyring as <service>/<user> and use it")
	fs.StringVar(&o.passphrase, "passphrase", "", "passphrase stored with --store")
	fs.BoolVar(&o.decrypt, "decrypt", false, "decrypt the text instead")

	return cmd
}

func runEncrypt(crypto *secretx.Crypto, text string, o encryptOptions) (*encryptResult, error) {
	keyRef := o.keyRef

	if o.store != "" {
		if o.passphrase == "" {
			return nil, errorx.NewConfigurationError("--store needs --passphrase")
		}

		service, user := "", o.store
		if i := strings.LastIndex(o.store, "/"); i >= 0 {
			service, user = o.store[:i], o.store[i+1:]
		}

		ref, err := secretx.StoreKey(service, user, o.passphrase)
		if err != nil {
			return nil, err
		}

		keyRef = ref
	}

	if keyRef == "" {
		return nil, errorx.NewConfigurationError("a key reference is required (--key or --store)")
	}

	if o.decrypt {
		plain, err := crypto.Decrypt(text, keyRef)
		if err != nil {
			return nil, err
		}

		return &encryptResult{PlainText: plain, EncryptionKey: keyRef}, nil
	}

	sealed, err := crypto.Encrypt(text, keyRef)
	if err != nil {
		return nil, err
	}

	return &encryptResult{CipherText: sealed, EncryptionKey: keyRef}, nil
}

func inputText(r io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errorx.NewConfigurationError("nothing to encrypt")
	}

	return line, nil
}
