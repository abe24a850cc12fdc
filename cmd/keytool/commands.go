package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/guard"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/signing"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "keytool",
		Short:         "Manage the token signing key",
		SilenceUsage: true,
	}
	root.AddCommand(newGenkeyCmd(), newKidCmd(), newJWKSCmd(), newMintCmd(), newVerifyCmd())
	return root
}

func newGenkeyCmd() *cobra.Command {
	var (
		bits      int
		out       string
		pubOut    string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate an RSA signing key as PKCS#8 PEM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := signing.GenerateKeyPair(bits)
			if err != nil {
				return err
			}
			privPEM, err := signing.EncodePrivateKeyPEM(kp)
			if err != nil {
				return err
			}
			if err := writeFile(out, privPEM, 0o600, overwrite); err != nil {
				return err
			}
			if pubOut != "" {
				pubPEM, err := signing.EncodePublicKeyPEM(kp.Public())
				if err != nil {
					return err
				}
				if err := writeFile(pubOut, pubPEM, 0o644, overwrite); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), kp.KeyID())
			return nil
		},
	}
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA key size")
	cmd.Flags().StringVar(&out, "out", "signing.pem", "private key output path")
	cmd.Flags().StringVar(&pubOut, "pub", "", "optional public key output path")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite existing files")
	return cmd
}

func newKidCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "kid",
		Short: "Print the RFC 7638 key id of a private or public key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(keyPath)
			if err != nil {
				return err
			}
			pub, err := signing.ParsePublicKeyPEM(data)
			if err != nil {
				priv, perr := signing.ParsePrivateKeyPEM(data)
				if perr != nil {
					return errors.Join(err, perr)
				}
				pub = &priv.PublicKey
			}
			kid, err := signing.DeriveKeyID(pub)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), kid)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "PEM key file")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newJWKSCmd() *cobra.Command {
	var keyFlags keyOptions
	cmd := &cobra.Command{
		Use:   "jwks",
		Short: "Print the JWKS a verifier would fetch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := keyFlags.service("")
			if err != nil {
				return err
			}
			set, err := svc.JWKS()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(set)
		},
	}
	keyFlags.bind(cmd)
	return cmd
}

func newMintCmd() *cobra.Command {
	var (
		keyFlags keyOptions
		issuer   string
		subject  string
		scope    string
		email    string
		name     string
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign a 4 hour token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := keyFlags.service(issuer)
			if err != nil {
				return err
			}
			token, _, err := svc.Mint(subject, scope, email, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	keyFlags.bind(cmd)
	cmd.Flags().StringVar(&issuer, "issuer", "http://localhost:8431", "iss claim")
	cmd.Flags().StringVar(&subject, "sub", "", "sub claim")
	cmd.Flags().StringVar(&scope, "scope", "", "space separated scopes")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&name, "name", "", "name claim")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var (
		pubPath string
		kid     string
		issuer  string
	)
	cmd := &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Verify a token against a public key and print its identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := guard.LoadStaticKey(pubPath, kid)
			if err != nil {
				return err
			}
			id, err := guard.NewVerifier(keys, issuer).Verify(context.Background(), strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("%s: %w", guard.ErrorCode(err), err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(id)
		},
	}
	cmd.Flags().StringVar(&pubPath, "pub", "", "PEM public key or certificate")
	cmd.Flags().StringVar(&kid, "kid", "", "key id (defaults to the thumbprint)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "expected iss claim")
	_ = cmd.MarkFlagRequired("pub")
	return cmd
}

// keyOptions selects the private signing key the same way the service does.
type keyOptions struct {
	keyFile          string
	keystoreFile     string
	keystorePassword string
	keyID            string
}

func (o *keyOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.keyFile, "key", "", "PEM private key")
	cmd.Flags().StringVar(&o.keystoreFile, "keystore", "", "PKCS#12 keystore")
	cmd.Flags().StringVar(&o.keystorePassword, "keystore-password", "", "keystore password")
	cmd.Flags().StringVar(&o.keyID, "kid", "", "key id (defaults to the thumbprint)")
	cmd.MarkFlagsOneRequired("key", "keystore")
	cmd.MarkFlagsMutuallyExclusive("key", "keystore")
}

func (o *keyOptions) service(issuer string) (*signing.Service, error) {
	kp, err := signing.LoadKeyPair(signing.KeyConfig{
		KeyFile:          o.keyFile,
		KeystoreFile:     o.keystoreFile,
		KeystorePassword: o.keystorePassword,
		KeyID:            o.keyID,
	})
	if err != nil {
		return nil, err
	}
	if issuer == "" {
		issuer = "keytool"
	}
	return signing.NewService(kp, issuer)
}

func writeFile(path string, data []byte, perm os.FileMode, overwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
