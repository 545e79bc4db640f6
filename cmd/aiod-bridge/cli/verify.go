package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AI-REDGIO-5-0/AIREDGIO-Portal-AIoD-Platform-Bridge/internal/verify"
)

var fixturesPath string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check translator descriptors and a live login/platform check against fixtures",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&fixturesPath, "fixtures", "./fixtures.json", "path to a translation fixtures file")
}

func runVerify(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	c, err := buildComponents(settings)
	if err != nil {
		return err
	}
	defer c.ledger.Close()

	ctx := cmd.Context()

	loggedIn, err := c.upload.CheckLogin(ctx, settings.DestinationAccessToken)
	if err != nil {
		return err
	}
	if !loggedIn {
		return fmt.Errorf("verify: could not login to destination")
	}
	c.log.Info("login check passed")

	platformOK, err := c.registrar.CheckPlatform(ctx)
	if err != nil {
		return err
	}
	if !platformOK {
		return fmt.Errorf("verify: could not check platform on destination")
	}
	c.log.Info("platform check passed")

	fixtures, err := verify.LoadFixtures(fixturesPath)
	if err != nil {
		return err
	}

	mismatches, err := verify.CheckTranslations(c.trans, fixtures)
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		for _, m := range mismatches {
			c.log.WithField("record_id", m.RecordID).Warn("translation mismatch")
		}
		return fmt.Errorf("verify: %d translation(s) did not match their fixtures", len(mismatches))
	}

	c.log.Info("all translation fixtures matched")
	return nil
}
